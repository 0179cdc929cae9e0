/*
service.go - Pass lifecycle orchestration

PURPOSE:
  The Service is the only writer of pass state. It validates every event
  against the transition table, enforces the submit-time guards (mutual
  exclusion, monthly quota), drives the checkpoint gateway operations,
  regenerates expired tokens, and keeps the food-pause record in sync
  with pass transitions.

OPERATIONS:
  Submit       resident-facing request creation (pending)
  Decide       approver workflow: approve (token + meal pause) or reject
  ScanOut      checkpoint egress: approved/late -> out
  ScanIn       checkpoint return: out -> returned, meal resume
  Verify       read-only token pre-check, mirrors the ScanIn expiry guard
  Regenerate   expired-token reissue with status-dependent guards
  ReconcileNow idempotent repair: recompute pause record from active pass

SIDE-EFFECT ORDERING:
  A checkpoint scan is physical ground truth. The status CAS commits
  first; the food-pause upsert runs after and, if it fails, is logged and
  left to ReconcileNow, never rolled back into the status change.
*/
package outpass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hostelhub/outpass-engine/directory"
	"github.com/hostelhub/outpass-engine/mess"
)

const (
	// DefaultMonthlyQuota caps approved-or-later passes per student per month.
	DefaultMonthlyQuota = 6

	// DefaultGracePeriod is how early, relative to the scheduled out-time,
	// an approved pass may be regenerated as late.
	DefaultGracePeriod = 30 * time.Minute
)

// Service orchestrates the pass lifecycle.
type Service struct {
	Passes     PassStore
	Students   directory.Directory
	Reconciler *mess.Reconciler
	Tokens     TokenIssuer
	Clock      Clock
	Logger     *zap.Logger

	MonthlyQuota int
	GracePeriod  time.Duration
}

// NewService wires a Service with defaults for quota, grace period, clock,
// token issuer and logger.
func NewService(passes PassStore, students directory.Directory, reconciler *mess.Reconciler, opts ...Option) *Service {
	s := &Service{
		Passes:       passes,
		Students:     students,
		Reconciler:   reconciler,
		Clock:        SystemClock{},
		Logger:       zap.NewNop(),
		MonthlyQuota: DefaultMonthlyQuota,
		GracePeriod:  DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Tokens == nil {
		s.Tokens = NewQRTokenIssuer(s.Clock)
	}
	return s
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(c Clock) Option              { return func(s *Service) { s.Clock = c } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.Logger = l } }
func WithTokenIssuer(t TokenIssuer) Option  { return func(s *Service) { s.Tokens = t } }
func WithMonthlyQuota(n int) Option         { return func(s *Service) { s.MonthlyQuota = n } }
func WithGracePeriod(d time.Duration) Option { return func(s *Service) { s.GracePeriod = d } }

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput is a resident's leave request.
type SubmitInput struct {
	StudentKey   string
	ScheduledOut time.Time
	ScheduledIn  time.Time
	Reason       string
	Kind         Kind
}

func (in SubmitInput) validate() error {
	if in.StudentKey == "" {
		return &ValidationError{Field: "student", Message: "roll number is required"}
	}
	if in.ScheduledOut.IsZero() || in.ScheduledIn.IsZero() {
		return &ValidationError{Field: "window", Message: "out and in times are required"}
	}
	if !in.ScheduledOut.Before(in.ScheduledIn) {
		return &ValidationError{Field: "window", Message: "out time must be before in time"}
	}
	if in.Reason == "" {
		return &ValidationError{Field: "reason", Message: "reason is required"}
	}
	if !in.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown pass kind %q", in.Kind)}
	}
	return nil
}

// Submit creates a pending pass after checking the mutual-exclusion and
// monthly-quota guards.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Pass, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	student, err := s.Students.FindByKey(ctx, in.StudentKey)
	if err != nil {
		return nil, err
	}

	// Mutual exclusion: at most one active/pending pass per student.
	active, err := s.Passes.ListByStudent(ctx, student.Roll, StatusApproved, StatusOut, StatusLate)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, &ActivePassError{Kind: active[0].Kind, Status: active[0].Status}
	}

	pending, err := s.Passes.ListByStudent(ctx, student.Roll, StatusPending)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, &PendingPassError{Kind: pending[0].Kind}
	}

	now := s.Clock.Now()
	period := QuotaPeriodOf(now)

	used, err := s.Passes.CountInQuota(ctx, student.Roll, period, QuotaStatuses...)
	if err != nil {
		return nil, err
	}
	if used >= s.MonthlyQuota {
		return nil, &QuotaError{Limit: s.MonthlyQuota, Used: used, Period: period}
	}

	p := &Pass{
		ID:           uuid.NewString(),
		StudentRef:   student.Roll,
		StudentName:  student.Name,
		ScheduledOut: in.ScheduledOut,
		ScheduledIn:  in.ScheduledIn,
		Status:       StatusPending,
		Kind:         in.Kind,
		Reason:       in.Reason,
		Quota:        period,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Passes.CreatePass(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Info("outpass submitted",
		zap.String("pass_id", p.ID),
		zap.String("student", p.StudentRef),
		zap.String("kind", string(p.Kind)))
	return p, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide resolves a pending pass. Approval issues the QR token and pauses
// the meals inside the absence window; rejection is terminal with no side
// effects. Deciding twice returns ErrAlreadyDecided.
func (s *Service) Decide(ctx context.Context, passID string, approve bool, approver string) (*Pass, error) {
	p, err := s.Passes.GetPass(ctx, passID)
	if err != nil {
		return nil, err
	}

	event := EventReject
	if approve {
		event = EventApprove
	}

	next, err := Next(p.Status, event)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	expectToken := p.Token

	if approve {
		token, err := s.Tokens.Issue(p.ID, p.StudentRef)
		if err != nil {
			return nil, err
		}
		p.Token = token
	}
	p.Status = next
	p.ApprovedAt = &now
	p.ApprovedBy = approver
	p.UpdatedAt = now

	if err := s.Passes.UpdatePassIf(ctx, p, StatusPending, expectToken); err != nil {
		return nil, err
	}

	if approve {
		if err := s.Reconciler.Pause(ctx, p.StudentRef, p.ScheduledOut, p.ScheduledIn, now); err != nil {
			// The approval is already visible; bookkeeping is repaired by
			// ReconcileNow, not by rolling the decision back.
			s.Logger.Error("meal pause failed after approval",
				zap.String("pass_id", p.ID),
				zap.String("student", p.StudentRef),
				zap.Error(err))
		}
		s.Logger.Info("outpass approved",
			zap.String("pass_id", p.ID),
			zap.String("student", p.StudentRef),
			zap.String("approver", approver))
	} else {
		s.Logger.Info("outpass rejected",
			zap.String("pass_id", p.ID),
			zap.String("student", p.StudentRef),
			zap.String("approver", approver))
	}
	return p, nil
}

// =============================================================================
// CHECKPOINT GATEWAY
// =============================================================================

// ScanOut marks the student as having physically left. Valid from approved
// or late; stamps the actual out-time.
func (s *Service) ScanOut(ctx context.Context, token string) (*Pass, error) {
	p, err := s.Passes.GetPassByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	next, err := Next(p.Status, EventScanOut)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	prev := p.Status
	p.Status = next
	p.ActualOut = &now
	p.UpdatedAt = now

	if err := s.Passes.UpdatePassIf(ctx, p, prev, token); err != nil {
		return nil, err
	}

	s.recordScan(ctx, p, DirectionOut, now)
	return p, nil
}

// ScanIn marks the student as returned and resumes paused meals. Valid
// only from out. Past the scheduled in-time the scan is refused with an
// ExpiredError unless the token was already regenerated as late: a late
// token bypasses the expiry guard it was issued to resolve.
func (s *Service) ScanIn(ctx context.Context, token string) (*Pass, error) {
	p, err := s.Passes.GetPassByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	next, err := Next(p.Status, EventScanIn)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if now.After(p.ScheduledIn) && !p.IsLate {
		return nil, &ExpiredError{ScheduledIn: p.ScheduledIn, Now: now, RequiresRegeneration: true}
	}

	prev := p.Status
	p.Status = next
	p.ActualIn = &now
	p.UpdatedAt = now

	if err := s.Passes.UpdatePassIf(ctx, p, prev, token); err != nil {
		return nil, err
	}

	if err := s.Reconciler.Resume(ctx, p.StudentRef, now, p.ScheduledIn); err != nil {
		s.Logger.Error("meal resume failed after scan-in",
			zap.String("pass_id", p.ID),
			zap.String("student", p.StudentRef),
			zap.Error(err))
	}

	s.recordScan(ctx, p, DirectionIn, now)
	return p, nil
}

// Verify is the read-only token pre-check used by guards before acting.
// The expired condition is exactly the ScanIn guard so the two can never
// disagree.
func (s *Service) Verify(ctx context.Context, token string) (*Verification, error) {
	p, err := s.Passes.GetPassByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	expired := p.Status == StatusOut && !p.IsLate && now.After(p.ScheduledIn)

	v := &Verification{Pass: p, Valid: !expired, Expired: expired}
	if expired {
		v.Reason = "return time has passed; regenerate the token as late"
	}
	return v, nil
}

func (s *Service) recordScan(ctx context.Context, p *Pass, dir ScanDirection, at time.Time) {
	ev := ScanEvent{
		PassID:      p.ID,
		StudentRef:  p.StudentRef,
		StudentName: p.StudentName,
		Direction:   dir,
		At:          at,
		Late:        p.IsLate,
	}
	if err := s.Passes.AppendScanEvent(ctx, ev); err != nil {
		s.Logger.Error("scan event not recorded",
			zap.String("pass_id", p.ID),
			zap.String("direction", string(dir)),
			zap.Error(err))
	}
}

// =============================================================================
// EXPIRY REGENERATION
// =============================================================================

// Regenerate reissues the QR token for a temporally invalid pass.
//
//   - approved: allowed from GracePeriod before the scheduled out-time;
//     the pass becomes late. Earlier calls get ErrStillValid.
//   - out: allowed once the scheduled in-time has passed; the status stays
//     out and only the lateness flag and token change. Earlier calls get
//     ErrNotYetExpired.
//   - anything else: ErrNotRegenerable.
//
// The old token stops resolving the moment the conditional write lands.
func (s *Service) Regenerate(ctx context.Context, passID string) (*Pass, error) {
	p, err := s.Passes.GetPass(ctx, passID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()

	var event Event
	switch p.Status {
	case StatusApproved:
		graceOpens := p.ScheduledOut.Add(-s.GracePeriod)
		if now.Before(graceOpens) {
			return nil, &StillValidError{ScheduledOut: p.ScheduledOut, GraceOpensAt: graceOpens}
		}
		event = EventExpireBeforeOut
	case StatusOut:
		if !now.After(p.ScheduledIn) {
			return nil, &NotYetExpiredError{ScheduledIn: p.ScheduledIn}
		}
		event = EventExpireBeforeIn
	default:
		return nil, &NotRegenerableError{Current: p.Status}
	}

	next, err := Next(p.Status, event)
	if err != nil {
		return nil, err
	}

	token, err := s.Tokens.Issue(p.ID, p.StudentRef)
	if err != nil {
		return nil, err
	}

	prevStatus, prevToken := p.Status, p.Token
	p.Status = next
	p.Token = token
	p.IsLate = true
	p.RegeneratedAt = &now
	p.UpdatedAt = now

	if err := s.Passes.UpdatePassIf(ctx, p, prevStatus, prevToken); err != nil {
		return nil, err
	}

	s.Logger.Info("token regenerated",
		zap.String("pass_id", p.ID),
		zap.String("student", p.StudentRef),
		zap.String("status", string(p.Status)))
	return p, nil
}

// =============================================================================
// RECONCILE-NOW REPAIR
// =============================================================================

// ReconcileNow recomputes the student's food-pause record purely from
// their current active pass: the record is rewritten when an
// approved/out/late pass covers at least one meal and cleared otherwise.
// Idempotent; usable as a startup self-heal and as a manual recovery tool
// after a pause upsert failure.
func (s *Service) ReconcileNow(ctx context.Context, studentKey string) error {
	student, err := s.Students.FindByKey(ctx, studentKey)
	if err != nil {
		return err
	}

	active, err := s.Passes.ListByStudent(ctx, student.Roll, StatusApproved, StatusOut, StatusLate)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return s.Reconciler.Clear(ctx, student.Roll)
	}

	p := active[0]
	meals := s.Reconciler.MealsInWindow(p.ScheduledOut, p.ScheduledIn)
	if len(meals) == 0 {
		return s.Reconciler.Clear(ctx, student.Roll)
	}
	return s.Reconciler.Pause(ctx, student.Roll, p.ScheduledOut, p.ScheduledIn, s.Clock.Now())
}

// =============================================================================
// QUERIES
// =============================================================================

// Pass returns a single pass by id.
func (s *Service) Pass(ctx context.Context, id string) (*Pass, error) {
	return s.Passes.GetPass(ctx, id)
}

// CurrentPasses returns the student's open passes (approved, late, out).
func (s *Service) CurrentPasses(ctx context.Context, studentKey string) ([]*Pass, error) {
	return s.Passes.ListByStudent(ctx, studentKey, StatusApproved, StatusLate, StatusOut)
}

// History returns the student's closed passes (returned, rejected).
func (s *Service) History(ctx context.Context, studentKey string) ([]*Pass, error) {
	return s.Passes.ListByStudent(ctx, studentKey, StatusReturned, StatusRejected)
}

// ActivePasses returns every open pass, for the security dashboard.
func (s *Service) ActivePasses(ctx context.Context) ([]*Pass, error) {
	return s.Passes.ListByStatus(ctx, StatusApproved, StatusLate, StatusOut)
}

// SecurityStats summarizes today's checkpoint activity.
func (s *Service) SecurityStats(ctx context.Context) (*SecurityStats, error) {
	approved, err := s.Passes.CountByStatus(ctx, StatusApproved)
	if err != nil {
		return nil, err
	}
	out, err := s.Passes.CountByStatus(ctx, StatusOut)
	if err != nil {
		return nil, err
	}

	today := mess.DateOf(s.Clock.Now())
	returned, err := s.Passes.CountReturnedSince(ctx, today)
	if err != nil {
		return nil, err
	}
	recent, err := s.Passes.RecentScanEvents(ctx, today, 10)
	if err != nil {
		return nil, err
	}

	return &SecurityStats{
		Approved:      approved,
		Out:           out,
		ReturnedToday: returned,
		RecentScans:   recent,
	}, nil
}
