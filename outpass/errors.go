/*
errors.go - Centralized error types for the outpass engine

PURPOSE:
  All guard failures are recoverable and surface as typed errors. Nothing
  in this package panics or retries internally; concurrency conflicts are
  returned to the caller, which re-fetches and re-evaluates.

ERROR CATEGORIES:
  1. Lookup errors      - unknown pass id, token, or student
  2. Submission errors  - active/pending pass exists, quota exceeded
  3. Transition errors  - event not valid for current status, lost CAS race
  4. Expiry errors      - token temporally stale, regeneration guards

USAGE:
  Wrap-aware checks via errors.Is:

    if errors.Is(err, outpass.ErrQuotaExceeded) { ... }

  The API layer maps categories to HTTP status codes with the helpers at
  the bottom of this file.
*/
package outpass

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPassNotFound is returned when no pass matches the given id or token.
	ErrPassNotFound = errors.New("pass not found")

	// ErrAlreadyDecided is returned when approve/reject is attempted on a
	// pass that has already been decided.
	ErrAlreadyDecided = errors.New("pass already decided")

	// ErrInvalidTransition is returned when an event is not valid for the
	// pass's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflictingTransition is returned when a conditional update matched
	// zero records: another caller transitioned the pass first.
	ErrConflictingTransition = errors.New("conflicting concurrent transition")

	// ErrActivePassExists blocks submission while an approved/out/late pass
	// is open for the student.
	ErrActivePassExists = errors.New("active pass exists")

	// ErrPendingPassExists blocks submission while an undecided request is
	// waiting for approval.
	ErrPendingPassExists = errors.New("pending pass exists")

	// ErrQuotaExceeded is returned when the monthly approval cap is reached.
	ErrQuotaExceeded = errors.New("monthly outpass quota exceeded")

	// ErrExpired is returned by scan-in when the token is temporally stale.
	// The holder must explicitly regenerate; the scan never silently fails.
	ErrExpired = errors.New("token expired")

	// ErrStillValid rejects regeneration of an approved pass before the
	// grace window opens.
	ErrStillValid = errors.New("token still valid")

	// ErrNotYetExpired rejects regeneration of an out pass before the
	// scheduled return time has passed.
	ErrNotYetExpired = errors.New("token not yet expired")

	// ErrNotRegenerable is returned for statuses that never regenerate.
	ErrNotRegenerable = errors.New("pass not regenerable")

	// ErrValidation is the root of all submission input errors.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError identifies the current status and the rejected event.
type InvalidTransitionError struct {
	Current Status
	Event   Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a pass in status %q", e.Event, e.Current)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ActivePassError reports the blocking pass so the resident UI can explain
// which pass must be closed first.
type ActivePassError struct {
	Kind   Kind
	Status Status
}

func (e *ActivePassError) Error() string {
	return fmt.Sprintf("student already has an active %s pass (status %s)", e.Kind, e.Status)
}

func (e *ActivePassError) Unwrap() error { return ErrActivePassExists }

// PendingPassError reports the undecided request blocking submission.
type PendingPassError struct {
	Kind Kind
}

func (e *PendingPassError) Error() string {
	return fmt.Sprintf("student already has a pending %s pass awaiting approval", e.Kind)
}

func (e *PendingPassError) Unwrap() error { return ErrPendingPassExists }

// QuotaError reports the cap and current usage for the submission month.
type QuotaError struct {
	Limit  int
	Used   int
	Period QuotaPeriod
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("outpass limit reached for %s: %d of %d used", e.Period, e.Used, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// ExpiredError instructs the caller to regenerate rather than retry.
type ExpiredError struct {
	ScheduledIn          time.Time
	Now                  time.Time
	RequiresRegeneration bool
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("token expired: return time %s has passed (now %s); regenerate as late",
		e.ScheduledIn.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *ExpiredError) Unwrap() error { return ErrExpired }

// StillValidError reports when regeneration becomes possible.
type StillValidError struct {
	ScheduledOut time.Time
	GraceOpensAt time.Time
}

func (e *StillValidError) Error() string {
	return fmt.Sprintf("token still valid: regeneration opens at %s (scheduled out %s)",
		e.GraceOpensAt.Format(time.RFC3339), e.ScheduledOut.Format(time.RFC3339))
}

func (e *StillValidError) Unwrap() error { return ErrStillValid }

// NotYetExpiredError reports the return time that has not yet passed.
type NotYetExpiredError struct {
	ScheduledIn time.Time
}

func (e *NotYetExpiredError) Error() string {
	return fmt.Sprintf("token still valid for check-in until %s", e.ScheduledIn.Format(time.RFC3339))
}

func (e *NotYetExpiredError) Unwrap() error { return ErrNotYetExpired }

// NotRegenerableError identifies the status that blocks regeneration.
type NotRegenerableError struct {
	Current Status
}

func (e *NotRegenerableError) Error() string {
	return fmt.Sprintf("cannot regenerate token for a %s pass", e.Current)
}

func (e *NotRegenerableError) Unwrap() error { return ErrNotRegenerable }

// ValidationError reports a malformed submission field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true for errors a caller may resolve by re-fetching
// and retrying: lost CAS races and submission-time mutual exclusion.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflictingTransition) ||
		errors.Is(err, ErrActivePassExists) ||
		errors.Is(err, ErrPendingPassExists) ||
		errors.Is(err, ErrQuotaExceeded)
}

// IsNotFound returns true if the error indicates a missing pass.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPassNotFound)
}

// IsExpired returns true when the caller must regenerate the token.
func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}

// IsClientError returns true if the error is due to invalid client input
// or a guard failure, as opposed to an infrastructure fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrStillValid) ||
		errors.Is(err, ErrNotYetExpired) ||
		errors.Is(err, ErrNotRegenerable) ||
		IsConflict(err) ||
		IsExpired(err)
}
