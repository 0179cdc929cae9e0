/*
Package outpass implements the leave-pass lifecycle engine for hostel
residents.

PURPOSE:
  A pass moves through a fixed state machine from submission to closure:

    pending --approve--> approved --scan-out--> out --scan-in--> returned
       |                    |                    |
     reject            expire (grace)       expire (past in-time)
       |                    |                    |
       v                    v                    v
    rejected              late --scan-out-->   out (isLate=true)

  Approval issues a QR token and pauses the meals that fall inside the
  absence window; scan-in resumes them. Expired tokens are never accepted
  silently: the holder must regenerate, which marks the pass late and
  invalidates the old token.

KEY TYPES IN THIS FILE:
  - Pass: the leave request entity, mutated only through validated
    transitions (see machine.go, service.go)
  - Status/Kind: lifecycle state and pass category enums
  - QuotaPeriod: (month, year) bucket for the monthly approval cap
  - ScanEvent: append-only audit record of accepted checkpoint scans

DESIGN PRINCIPLES:
  1. Transitions are data: the allowed edges live in a table (machine.go)
  2. Optimistic concurrency: every status write is conditioned on the
     expected prior status and token; a lost race is a typed conflict
  3. Injected time: all expiry guards read a Clock, never the system clock

SEE ALSO:
  - machine.go: transition table and guards
  - service.go: orchestration (submit, decide, scans, regeneration)
  - token.go:   QR token issuance
  - errors.go:  error taxonomy
*/
package outpass

import "time"

// =============================================================================
// STATUS - Pass lifecycle state
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusOut      Status = "out"
	StatusReturned Status = "returned"
	StatusLate     Status = "late"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusReturned
}

// Active reports whether the pass blocks a new submission for the same
// student. At most one pass per student may be in an active status.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusApproved, StatusOut, StatusLate:
		return true
	}
	return false
}

// Valid reports whether s is one of the six known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusOut, StatusReturned, StatusLate:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that hold the one-pass-per-student slot.
var ActiveStatuses = []Status{StatusPending, StatusApproved, StatusOut, StatusLate}

// QuotaStatuses are the statuses that count against the monthly cap:
// anything that has reached approval. Pending and rejected never count.
var QuotaStatuses = []Status{StatusApproved, StatusOut, StatusReturned, StatusLate}

// =============================================================================
// KIND - Pass category (affects quota accounting only)
// =============================================================================

type Kind string

const (
	KindShortLeave Kind = "short-leave"
	KindHomeLeave  Kind = "home-leave"
)

func (k Kind) Valid() bool {
	return k == KindShortLeave || k == KindHomeLeave
}

// =============================================================================
// QUOTA PERIOD - Monthly bucket for the approval cap
// =============================================================================

type QuotaPeriod struct {
	Month time.Month
	Year  int
}

func QuotaPeriodOf(t time.Time) QuotaPeriod {
	return QuotaPeriod{Month: t.Month(), Year: t.Year()}
}

func (q QuotaPeriod) String() string {
	return time.Date(q.Year, q.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// =============================================================================
// PASS - The leave request entity
// =============================================================================

type Pass struct {
	ID          string
	StudentRef  string // roll-number key into the student directory
	StudentName string // denormalized for checkpoint display

	// Requested absence window. Invariant: ScheduledOut < ScheduledIn.
	ScheduledOut time.Time
	ScheduledIn  time.Time

	Status Status
	Kind   Kind
	Reason string

	// Current QR token. Empty until approval; replaced on every
	// regeneration. Unique across all passes, live and historical.
	Token string

	// True once the pass has required at least one token regeneration.
	IsLate bool

	// Stamped by the checkpoint at the moment of physical scan.
	ActualOut *time.Time
	ActualIn  *time.Time

	// Set once on the pending->approved (or ->rejected) decision.
	ApprovedAt *time.Time
	ApprovedBy string

	RegeneratedAt *time.Time

	Quota QuotaPeriod

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// SCAN EVENT - Audit record of an accepted checkpoint scan
// =============================================================================

type ScanDirection string

const (
	DirectionOut ScanDirection = "out"
	DirectionIn  ScanDirection = "in"
)

// ScanEvent is an append-only audit entry. One is recorded for every
// accepted scan; rejected scans leave no event.
type ScanEvent struct {
	PassID      string
	StudentRef  string
	StudentName string
	Direction   ScanDirection
	At          time.Time
	Late        bool
}

// SecurityStats is the checkpoint dashboard summary.
type SecurityStats struct {
	Approved      int
	Out           int
	ReturnedToday int
	RecentScans   []ScanEvent
}

// Verification is the read-only result of a token pre-check. Expired is
// true precisely when status=out, isLate=false and now is past the
// scheduled return time, mirroring the scan-in guard.
type Verification struct {
	Pass    *Pass
	Valid   bool
	Expired bool
	Reason  string
}
