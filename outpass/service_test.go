package outpass_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/hostelhub/outpass-engine/directory"
	"github.com/hostelhub/outpass-engine/mess"
	"github.com/hostelhub/outpass-engine/outpass"
	"github.com/hostelhub/outpass-engine/outpass/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testClock is a settable clock shared by the service and the test.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	svc   *outpass.Service
	mem   *store.Memory
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	mem.AddStudent(directory.Student{
		ID:   "stu-1",
		Roll: "2023CS101",
		Name: "Asha Verma",
	})

	clock := &testClock{now: time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)}
	reconciler := mess.NewReconciler(mess.DefaultCalendar(), mem, nil)
	svc := outpass.NewService(mem, mem, reconciler, outpass.WithClock(clock))

	return &fixture{svc: svc, mem: mem, clock: clock}
}

// dayHour builds a timestamp on a January 2026 day.
func dayHour(day, hour, minute int) time.Time {
	return time.Date(2026, time.January, day, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) submit(t *testing.T, out, in time.Time) *outpass.Pass {
	t.Helper()
	p, err := f.svc.Submit(context.Background(), outpass.SubmitInput{
		StudentKey:   "2023CS101",
		ScheduledOut: out,
		ScheduledIn:  in,
		Reason:       "family visit",
		Kind:         outpass.KindShortLeave,
	})
	require.NoError(t, err)
	return p
}

// approved walks a fresh submission through approval.
func (f *fixture) approved(t *testing.T, out, in time.Time) *outpass.Pass {
	t.Helper()
	p := f.submit(t, out, in)
	p, err := f.svc.Decide(context.Background(), p.ID, true, "warden")
	require.NoError(t, err)
	return p
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_CreatesPendingPass(t *testing.T) {
	f := newFixture(t)

	p := f.submit(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	assert.Equal(t, outpass.StatusPending, p.Status)
	assert.Equal(t, "2023CS101", p.StudentRef)
	assert.Equal(t, "Asha Verma", p.StudentName)
	assert.Empty(t, p.Token, "no token before approval")
	assert.False(t, p.IsLate)
	assert.Equal(t, outpass.QuotaPeriod{Month: time.January, Year: 2026}, p.Quota)
}

func TestSubmit_UnknownStudent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), outpass.SubmitInput{
		StudentKey:   "2099XX999",
		ScheduledOut: dayHour(5, 11, 0),
		ScheduledIn:  dayHour(5, 15, 0),
		Reason:       "family visit",
		Kind:         outpass.KindShortLeave,
	})
	assert.ErrorIs(t, err, directory.ErrStudentNotFound)
}

func TestSubmit_ValidationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   outpass.SubmitInput
	}{
		{"missing student", outpass.SubmitInput{
			ScheduledOut: dayHour(5, 11, 0), ScheduledIn: dayHour(5, 15, 0),
			Reason: "x", Kind: outpass.KindShortLeave}},
		{"inverted window", outpass.SubmitInput{
			StudentKey: "2023CS101", ScheduledOut: dayHour(5, 15, 0), ScheduledIn: dayHour(5, 11, 0),
			Reason: "x", Kind: outpass.KindShortLeave}},
		{"zero-length window", outpass.SubmitInput{
			StudentKey: "2023CS101", ScheduledOut: dayHour(5, 11, 0), ScheduledIn: dayHour(5, 11, 0),
			Reason: "x", Kind: outpass.KindShortLeave}},
		{"missing reason", outpass.SubmitInput{
			StudentKey: "2023CS101", ScheduledOut: dayHour(5, 11, 0), ScheduledIn: dayHour(5, 15, 0),
			Kind: outpass.KindShortLeave}},
		{"unknown kind", outpass.SubmitInput{
			StudentKey: "2023CS101", ScheduledOut: dayHour(5, 11, 0), ScheduledIn: dayHour(5, 15, 0),
			Reason: "x", Kind: outpass.Kind("day-trip")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tc.in)
			assert.ErrorIs(t, err, outpass.ErrValidation)
		})
	}
}

func TestSubmit_BlockedByPendingPass(t *testing.T) {
	// GIVEN: An undecided request on file
	// WHEN: Submitting another
	// THEN: Rejected with the pending-pass guard
	f := newFixture(t)

	f.submit(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	_, err := f.svc.Submit(context.Background(), outpass.SubmitInput{
		StudentKey:   "2023CS101",
		ScheduledOut: dayHour(6, 11, 0),
		ScheduledIn:  dayHour(6, 15, 0),
		Reason:       "another trip",
		Kind:         outpass.KindShortLeave,
	})
	assert.ErrorIs(t, err, outpass.ErrPendingPassExists)
}

func TestSubmit_BlockedByActivePass(t *testing.T) {
	// GIVEN: An approved pass not yet closed
	// WHEN: Submitting another
	// THEN: Rejected with the active-pass guard, reporting the blocker
	f := newFixture(t)

	f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	_, err := f.svc.Submit(context.Background(), outpass.SubmitInput{
		StudentKey:   "2023CS101",
		ScheduledOut: dayHour(6, 11, 0),
		ScheduledIn:  dayHour(6, 15, 0),
		Reason:       "another trip",
		Kind:         outpass.KindHomeLeave,
	})
	require.ErrorIs(t, err, outpass.ErrActivePassExists)

	var ape *outpass.ActivePassError
	require.ErrorAs(t, err, &ape)
	assert.Equal(t, outpass.StatusApproved, ape.Status)
	assert.Equal(t, outpass.KindShortLeave, ape.Kind)
}

func TestSubmit_MonthlyQuotaExceeded(t *testing.T) {
	// GIVEN: Six passes already approved this month (all closed)
	// WHEN: Submitting a seventh
	// THEN: Rejected with the quota guard; pending/rejected never counted
	f := newFixture(t)
	ctx := context.Background()

	period := outpass.QuotaPeriodOf(f.clock.now)
	for i := 0; i < 6; i++ {
		p := &outpass.Pass{
			ID:           "seed-" + string(rune('a'+i)),
			StudentRef:   "2023CS101",
			ScheduledOut: dayHour(1+i, 11, 0),
			ScheduledIn:  dayHour(1+i, 15, 0),
			Status:       outpass.StatusReturned,
			Kind:         outpass.KindShortLeave,
			Reason:       "errand",
			Token:        "seed-token-" + string(rune('a'+i)),
			Quota:        period,
			CreatedAt:    dayHour(1+i, 9, 0),
			UpdatedAt:    dayHour(1+i, 16, 0),
		}
		require.NoError(t, f.mem.CreatePass(ctx, p))
	}

	_, err := f.svc.Submit(ctx, outpass.SubmitInput{
		StudentKey:   "2023CS101",
		ScheduledOut: dayHour(20, 11, 0),
		ScheduledIn:  dayHour(20, 15, 0),
		Reason:       "one too many",
		Kind:         outpass.KindShortLeave,
	})
	require.ErrorIs(t, err, outpass.ErrQuotaExceeded)

	var qe *outpass.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 6, qe.Limit)
	assert.Equal(t, 6, qe.Used)
}

func TestSubmit_RejectedPassesDoNotCountAgainstQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	period := outpass.QuotaPeriodOf(f.clock.now)
	for i := 0; i < 6; i++ {
		p := &outpass.Pass{
			ID:           "rej-" + string(rune('a'+i)),
			StudentRef:   "2023CS101",
			ScheduledOut: dayHour(1+i, 11, 0),
			ScheduledIn:  dayHour(1+i, 15, 0),
			Status:       outpass.StatusRejected,
			Kind:         outpass.KindShortLeave,
			Reason:       "errand",
			Quota:        period,
			CreatedAt:    dayHour(1+i, 9, 0),
			UpdatedAt:    dayHour(1+i, 10, 0),
		}
		require.NoError(t, f.mem.CreatePass(ctx, p))
	}

	p := f.submit(t, dayHour(20, 11, 0), dayHour(20, 15, 0))
	assert.Equal(t, outpass.StatusPending, p.Status)
}

// =============================================================================
// DECIDE
// =============================================================================

func TestDecide_Approve_IssuesTokenAndPausesMeals(t *testing.T) {
	// GIVEN: A pending request for [11:00, 15:00)
	// WHEN: The warden approves
	// THEN: Token issued, meals paused for lunch, approver recorded
	f := newFixture(t)
	ctx := context.Background()

	p := f.submit(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	p, err := f.svc.Decide(ctx, p.ID, true, "warden")
	require.NoError(t, err)

	assert.Equal(t, outpass.StatusApproved, p.Status)
	assert.NotEmpty(t, p.Token)
	assert.Equal(t, "warden", p.ApprovedBy)
	require.NotNil(t, p.ApprovedAt)

	rec, err := f.mem.GetPause(ctx, "2023CS101")
	require.NoError(t, err)
	assert.Equal(t, []mess.Meal{mess.MealLunch}, rec.PausedMeals)
}

func TestDecide_Approve_NoMealsInWindow_NoPauseRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.submit(t, dayHour(5, 9, 30), dayHour(5, 12, 0))
	_, err := f.svc.Decide(ctx, p.ID, true, "warden")
	require.NoError(t, err)

	_, err = f.mem.GetPause(ctx, "2023CS101")
	assert.ErrorIs(t, err, mess.ErrNoPause)
}

func TestDecide_Reject_IsTerminalWithNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.submit(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	p, err := f.svc.Decide(ctx, p.ID, false, "warden")
	require.NoError(t, err)

	assert.Equal(t, outpass.StatusRejected, p.Status)
	assert.Empty(t, p.Token, "rejection issues no token")

	_, err = f.mem.GetPause(ctx, "2023CS101")
	assert.ErrorIs(t, err, mess.ErrNoPause)
}

func TestDecide_Twice_ReturnsAlreadyDecided(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.submit(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.Decide(ctx, p.ID, true, "warden")
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, p.ID, false, "warden")
	assert.ErrorIs(t, err, outpass.ErrAlreadyDecided)
}

func TestDecide_UnknownPass(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Decide(context.Background(), "nope", true, "warden")
	assert.ErrorIs(t, err, outpass.ErrPassNotFound)
}

// =============================================================================
// CHECKPOINT GATEWAY
// =============================================================================

func TestScanOut_StampsActualAndRecordsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	f.clock.now = dayHour(5, 11, 5)
	p, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	assert.Equal(t, outpass.StatusOut, p.Status)
	require.NotNil(t, p.ActualOut)
	assert.Equal(t, dayHour(5, 11, 5), *p.ActualOut)

	events, err := f.mem.RecentScanEvents(ctx, dayHour(5, 0, 0), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, outpass.DirectionOut, events[0].Direction)
	assert.Equal(t, "2023CS101", events[0].StudentRef)
}

func TestScanOut_Twice_IsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	_, err = f.svc.ScanOut(ctx, p.Token)
	assert.ErrorIs(t, err, outpass.ErrInvalidTransition)
}

func TestScanOut_UnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ScanOut(context.Background(), "bogus-token")
	assert.ErrorIs(t, err, outpass.ErrPassNotFound)
}

func TestScanIn_OnTime_ReturnsAndResumesMeals(t *testing.T) {
	// GIVEN: A student out on an approved pass covering lunch
	// WHEN: Scanning in before the scheduled return
	// THEN: Pass closes, actual in-time stamped, meal record resumed
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	f.clock.now = dayHour(5, 14, 30)
	p, err = f.svc.ScanIn(ctx, p.Token)
	require.NoError(t, err)

	assert.Equal(t, outpass.StatusReturned, p.Status)
	require.NotNil(t, p.ActualIn)
	assert.Equal(t, dayHour(5, 14, 30), *p.ActualIn)

	rec, err := f.mem.GetPause(ctx, "2023CS101")
	require.NoError(t, err)
	assert.Equal(t, rec.PausedMeals, rec.ResumedMeals)
}

func TestScanIn_OneMinutePastDeadline_RefusedWithRegenerationHint(t *testing.T) {
	// GIVEN: Scheduled return 15:00, student scans in at 15:01
	// WHEN: Scanning in
	// THEN: Refused with ExpiredError carrying the regeneration hint;
	//       the pass stays out
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	f.clock.now = dayHour(5, 15, 1)
	_, err = f.svc.ScanIn(ctx, p.Token)
	require.ErrorIs(t, err, outpass.ErrExpired)

	var exp *outpass.ExpiredError
	require.ErrorAs(t, err, &exp)
	assert.True(t, exp.RequiresRegeneration)

	current, err := f.mem.GetPass(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, outpass.StatusOut, current.Status)
	assert.Nil(t, current.ActualIn)
}

func TestScanIn_ExactlyAtDeadline_StillAccepted(t *testing.T) {
	// now.After(ScheduledIn) is false at the exact deadline
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	f.clock.now = dayHour(5, 15, 0)
	p, err = f.svc.ScanIn(ctx, p.Token)
	require.NoError(t, err)
	assert.Equal(t, outpass.StatusReturned, p.Status)
}

func TestScanIn_LateToken_BypassesExpiryGuard(t *testing.T) {
	// GIVEN: A pass regenerated after missing its deadline
	// WHEN: Scanning in with the late token, still past the deadline
	// THEN: Accepted; a late token exists precisely to resolve this
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	f.clock.now = dayHour(5, 16, 0)
	p, err = f.svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, p.IsLate)

	f.clock.now = dayHour(5, 16, 30)
	p, err = f.svc.ScanIn(ctx, p.Token)
	require.NoError(t, err)
	assert.Equal(t, outpass.StatusReturned, p.Status)
	assert.True(t, p.IsLate, "lateness survives closure")
}

// =============================================================================
// VERIFY
// =============================================================================

func TestVerify_MirrorsScanInGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	// Approved, before anything: valid
	v, err := f.svc.Verify(ctx, p.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.False(t, v.Expired)

	_, err = f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	// Out, before deadline: valid
	f.clock.now = dayHour(5, 14, 0)
	v, err = f.svc.Verify(ctx, p.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	// Out, past deadline: expired, with a reason for the guard UI
	f.clock.now = dayHour(5, 15, 1)
	v, err = f.svc.Verify(ctx, p.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.True(t, v.Expired)
	assert.NotEmpty(t, v.Reason)
}

func TestVerify_LateToken_NotExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	f.clock.now = dayHour(5, 16, 0)
	p, err = f.svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	v, err := f.svc.Verify(ctx, p.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.False(t, v.Expired)
}

// =============================================================================
// REGENERATION
// =============================================================================

func TestRegenerate_Approved_BeforeGraceWindow_Refused(t *testing.T) {
	// GIVEN: Scheduled out 11:00, grace 30m, so regeneration opens 10:30
	// WHEN: Regenerating at 10:00
	// THEN: Refused, reporting when the window opens
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	f.clock.now = dayHour(5, 10, 0)
	_, err := f.svc.Regenerate(ctx, p.ID)
	require.ErrorIs(t, err, outpass.ErrStillValid)

	var sve *outpass.StillValidError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, dayHour(5, 10, 30), sve.GraceOpensAt)
}

func TestRegenerate_Approved_AtGraceBoundary_MarksLate(t *testing.T) {
	// At exactly ScheduledOut-30m the guard opens (not Before)
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	oldToken := p.Token

	f.clock.now = dayHour(5, 10, 30)
	p, err := f.svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, outpass.StatusLate, p.Status)
	assert.True(t, p.IsLate)
	assert.NotEqual(t, oldToken, p.Token)
	require.NotNil(t, p.RegeneratedAt)

	// The old token stops resolving
	_, err = f.svc.Verify(ctx, oldToken)
	assert.ErrorIs(t, err, outpass.ErrPassNotFound)

	// The late pass can still scan out
	p, err = f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)
	assert.Equal(t, outpass.StatusOut, p.Status)
}

func TestRegenerate_Out_BeforeDeadline_Refused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	f.clock.now = dayHour(5, 14, 0)
	_, err = f.svc.Regenerate(ctx, p.ID)
	assert.ErrorIs(t, err, outpass.ErrNotYetExpired)
}

func TestRegenerate_Out_PastDeadline_KeepsStatusOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)
	oldToken := p.Token

	f.clock.now = dayHour(5, 15, 30)
	p, err = f.svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, outpass.StatusOut, p.Status, "post-deadline regeneration never renames the status")
	assert.True(t, p.IsLate)
	assert.NotEqual(t, oldToken, p.Token)

	// Scanning in with the stale token finds nothing
	_, err = f.svc.ScanIn(ctx, oldToken)
	assert.ErrorIs(t, err, outpass.ErrPassNotFound)
}

func TestRegenerate_PendingOrClosed_Refused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.submit(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.Regenerate(ctx, p.ID)
	require.ErrorIs(t, err, outpass.ErrNotRegenerable)

	var nre *outpass.NotRegenerableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, outpass.StatusPending, nre.Current)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConditionalUpdate_StaleWriterLoses(t *testing.T) {
	// GIVEN: Two callers holding the same approved pass
	// WHEN: The first scans out, then the second writes with stale
	//       expectations
	// THEN: The second write matches nothing and reports the conflict
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	stale, err := f.mem.GetPass(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)

	stale.Status = outpass.StatusOut
	err = f.mem.UpdatePassIf(ctx, stale, outpass.StatusApproved, stale.Token)
	require.ErrorIs(t, err, outpass.ErrConflictingTransition)
	assert.True(t, outpass.IsConflict(err))
}

// =============================================================================
// RECONCILE-NOW REPAIR
// =============================================================================

func TestReconcileNow_RebuildsMissingPauseRecord(t *testing.T) {
	// GIVEN: An approved pass whose pause upsert was lost
	// WHEN: Running the repair
	// THEN: The record is recomputed from the pass window
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	require.NoError(t, f.mem.DeletePause(ctx, "2023CS101"))

	require.NoError(t, f.svc.ReconcileNow(ctx, "2023CS101"))

	rec, err := f.mem.GetPause(ctx, "2023CS101")
	require.NoError(t, err)
	assert.Equal(t, []mess.Meal{mess.MealLunch}, rec.PausedMeals)
	assert.Equal(t, mess.DateOf(p.ScheduledOut), rec.PauseFrom)
}

func TestReconcileNow_NoActivePass_ClearsRecord(t *testing.T) {
	// GIVEN: A closed pass but a stale pause record still on file
	// WHEN: Running the repair
	// THEN: The record is removed
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)
	f.clock.now = dayHour(5, 14, 30)
	_, err = f.svc.ScanIn(ctx, p.Token)
	require.NoError(t, err)

	// Plant a stale record as if the resume write had raced
	require.NoError(t, f.mem.UpsertPause(ctx, mess.PauseRecord{
		StudentRef:  "2023CS101",
		PauseFrom:   dayHour(5, 0, 0),
		ResumeFrom:  dayHour(5, 0, 0),
		PausedMeals: []mess.Meal{mess.MealLunch},
	}))

	require.NoError(t, f.svc.ReconcileNow(ctx, "2023CS101"))

	_, err = f.mem.GetPause(ctx, "2023CS101")
	assert.ErrorIs(t, err, mess.ErrNoPause)
}

func TestReconcileNow_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	require.NoError(t, f.svc.ReconcileNow(ctx, "2023CS101"))
	first, err := f.mem.GetPause(ctx, "2023CS101")
	require.NoError(t, err)

	require.NoError(t, f.svc.ReconcileNow(ctx, "2023CS101"))
	second, err := f.mem.GetPause(ctx, "2023CS101")
	require.NoError(t, err)

	assert.Equal(t, first.PausedMeals, second.PausedMeals)
	assert.Equal(t, first.PauseFrom, second.PauseFrom)
	assert.Equal(t, first.ResumeFrom, second.ResumeFrom)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestCurrentAndHistoryViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))

	current, err := f.svc.CurrentPasses(ctx, "2023CS101")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, p.ID, current[0].ID)

	history, err := f.svc.History(ctx, "2023CS101")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)
	f.clock.now = dayHour(5, 14, 30)
	_, err = f.svc.ScanIn(ctx, p.Token)
	require.NoError(t, err)

	current, err = f.svc.CurrentPasses(ctx, "2023CS101")
	require.NoError(t, err)
	assert.Empty(t, current)

	history, err = f.svc.History(ctx, "2023CS101")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, outpass.StatusReturned, history[0].Status)
}

func TestSecurityStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.approved(t, dayHour(5, 11, 0), dayHour(5, 15, 0))
	_, err := f.svc.ScanOut(ctx, p.Token)
	require.NoError(t, err)
	f.clock.now = dayHour(5, 14, 30)
	_, err = f.svc.ScanIn(ctx, p.Token)
	require.NoError(t, err)

	stats, err := f.svc.SecurityStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Approved)
	assert.Equal(t, 0, stats.Out)
	assert.Equal(t, 1, stats.ReturnedToday)
	assert.Len(t, stats.RecentScans, 2)
}
