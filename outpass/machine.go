/*
machine.go - The pass lifecycle state machine

PURPOSE:
  Declares every allowed transition as data and validates events against
  the table. The table is the single source of truth; service.go never
  flips a status without consulting it.

TRANSITION TABLE:
  (none)    submit             pending    no active/pending pass; quota ok
  pending   approve            approved   issue token, pause meals
  pending   reject             rejected
  approved  scan-out           out        stamp actualOut
  approved  expire-before-out  late       regenerate token (grace guard)
  late      scan-out           out        stamp actualOut
  out       scan-in            returned   stamp actualIn, resume meals
  out       expire-before-in   out        regenerate token, set isLate

  The out->out edge is intentional: a post-deadline regeneration changes
  only the token and the lateness flag, never the status name.

Guard preconditions (time, quota, mutual exclusion) are enforced by the
Service; this file answers only "is this edge in the graph".
*/
package outpass

// Event names a lifecycle action applied to a pass.
type Event string

const (
	EventSubmit          Event = "submit"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventScanOut         Event = "scan-out"
	EventScanIn          Event = "scan-in"
	EventExpireBeforeOut Event = "expire-before-out"
	EventExpireBeforeIn  Event = "expire-before-in"
)

// transition is a single allowed edge in the lifecycle state machine.
type transition struct {
	From  Status
	Event Event
	To    Status
}

var transitions = []transition{
	{From: StatusPending, Event: EventApprove, To: StatusApproved},
	{From: StatusPending, Event: EventReject, To: StatusRejected},

	{From: StatusApproved, Event: EventScanOut, To: StatusOut},
	{From: StatusApproved, Event: EventExpireBeforeOut, To: StatusLate},

	{From: StatusLate, Event: EventScanOut, To: StatusOut},

	{From: StatusOut, Event: EventScanIn, To: StatusReturned},
	{From: StatusOut, Event: EventExpireBeforeIn, To: StatusOut},
}

// Next returns the status that results from applying event to the given
// status. An edge not present in the table yields an InvalidTransitionError
// identifying the current status and the rejected event. Attempting to
// decide a pass twice yields ErrAlreadyDecided instead, so callers can
// distinguish "wrong state" from "decision already made".
func Next(from Status, event Event) (Status, error) {
	for _, t := range transitions {
		if t.From == from && t.Event == event {
			return t.To, nil
		}
	}

	if (event == EventApprove || event == EventReject) &&
		(from == StatusApproved || from == StatusRejected) {
		return "", ErrAlreadyDecided
	}

	return "", &InvalidTransitionError{Current: from, Event: event}
}

// CanApply reports whether the edge exists without constructing an error.
func CanApply(from Status, event Event) bool {
	for _, t := range transitions {
		if t.From == from && t.Event == event {
			return true
		}
	}
	return false
}
