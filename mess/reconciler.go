/*
reconciler.go - Absence-window to meal-pause reconciliation

PURPOSE:
  Given an absence window [windowStart, windowEnd), decide which meals to
  suppress and maintain the per-student pause record. The record is
  upserted with a full replacement of the pause/resume fields (never
  partial increments): the one-active-pass-per-student invariant makes
  last-writer-wins safe.

MULTI-DAY WINDOWS:
  The window is enumerated day by day. For each calendar day it spans, the
  window is clipped to that day and the clipped portion is tested against
  the calendar with the half-open time-of-day overlap test; the result is
  the union across days. A same-day window therefore degrades to exactly
  one time-of-day check, while a home-leave spanning several days pauses
  every meal that occurs on any covered day.

EMPTY RESULTS:
  A window touching no meal writes no record at all. An empty-but-present
  pause would read as "all meals suppressed" downstream.
*/
package mess

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// PAUSE RECORD
// =============================================================================

// PauseRecord is the per-student food suppression document. At most one
// exists per student; it always reflects the student's current active
// pass window.
type PauseRecord struct {
	StudentRef string

	// Calendar dates (midnight-truncated) bounding the suppressed period.
	// Meals are suppressed from PauseFrom up to but not including ResumeFrom;
	// a same-day pass suppresses PauseFrom itself.
	PauseFrom  time.Time
	ResumeFrom time.Time

	PausedMeals  []Meal
	ResumedMeals []Meal

	UpdatedAt time.Time
}

// ErrNoPause is returned when a student has no pause record.
var ErrNoPause = errors.New("no food pause record")

// PauseStore persists pause records keyed by student.
type PauseStore interface {
	// UpsertPause creates or fully replaces the student's record.
	UpsertPause(ctx context.Context, rec PauseRecord) error

	// GetPause returns ErrNoPause when the student has no record.
	GetPause(ctx context.Context, studentRef string) (*PauseRecord, error)

	// DeletePause removes the record; deleting a missing record is a no-op.
	DeletePause(ctx context.Context, studentRef string) error
}

// DateOf truncates a timestamp to its calendar date.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Calendar Calendar
	Pauses   PauseStore
	Logger   *zap.Logger
}

func NewReconciler(calendar Calendar, pauses PauseStore, logger *zap.Logger) *Reconciler {
	if calendar == nil {
		calendar = DefaultCalendar()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{Calendar: calendar, Pauses: pauses, Logger: logger}
}

// MealsInWindow returns the meals that occur inside the absence window
// [windowStart, windowEnd), in serving order. Idempotent and
// order-independent: the same window always yields the same set.
func (r *Reconciler) MealsInWindow(windowStart, windowEnd time.Time) []Meal {
	if !windowStart.Before(windowEnd) {
		return nil
	}

	seen := make(map[Meal]bool)
	var meals []Meal

	for day := DateOf(windowStart); day.Before(windowEnd); day = day.AddDate(0, 0, 1) {
		segStart := TimeOfDay(0)
		if windowStart.After(day) {
			segStart = TimeOfDayOf(windowStart)
		}
		segEnd := EndOfDay
		nextDay := day.AddDate(0, 0, 1)
		if windowEnd.Before(nextDay) {
			segEnd = TimeOfDayOf(windowEnd)
		}
		if segStart >= segEnd {
			continue
		}
		for _, m := range r.Calendar.MealsOverlapping(segStart, segEnd) {
			if !seen[m] {
				seen[m] = true
				meals = append(meals, m)
			}
		}
	}

	SortMeals(meals)
	return meals
}

// Pause upserts the student's pause record for the given absence window.
// A window covering no meals writes nothing.
func (r *Reconciler) Pause(ctx context.Context, studentRef string, windowStart, windowEnd time.Time, now time.Time) error {
	meals := r.MealsInWindow(windowStart, windowEnd)
	if len(meals) == 0 {
		r.Logger.Info("no meals in absence window, skipping pause",
			zap.String("student", studentRef),
			zap.Time("window_start", windowStart),
			zap.Time("window_end", windowEnd))
		return nil
	}

	rec := PauseRecord{
		StudentRef: studentRef,
		PauseFrom:  DateOf(windowStart),
		ResumeFrom: DateOf(windowEnd),
		// The resume set mirrors the pause set until an actual return
		// triggers recomputation.
		PausedMeals:  meals,
		ResumedMeals: meals,
		UpdatedAt:    now,
	}

	if err := r.Pauses.UpsertPause(ctx, rec); err != nil {
		return err
	}

	r.Logger.Info("meals paused",
		zap.String("student", studentRef),
		zap.Time("pause_from", rec.PauseFrom),
		zap.Time("resume_from", rec.ResumeFrom),
		zap.Any("meals", meals))
	return nil
}

// Resume adjusts the resume date after an actual return. An early return
// (time-of-day before the scheduled return's) resumes meals from today;
// otherwise meals resume from the originally scheduled return date. With
// no existing record this is a no-op.
func (r *Reconciler) Resume(ctx context.Context, studentRef string, actualReturn, scheduledReturn time.Time) error {
	rec, err := r.Pauses.GetPause(ctx, studentRef)
	if err != nil {
		if errors.Is(err, ErrNoPause) {
			return nil
		}
		return err
	}

	resumeFrom := DateOf(scheduledReturn)
	if TimeOfDayOf(actualReturn) < TimeOfDayOf(scheduledReturn) {
		resumeFrom = DateOf(actualReturn)
	}

	rec.ResumeFrom = resumeFrom
	rec.ResumedMeals = append([]Meal(nil), rec.PausedMeals...)
	rec.UpdatedAt = actualReturn

	if err := r.Pauses.UpsertPause(ctx, *rec); err != nil {
		return err
	}

	r.Logger.Info("meals resuming",
		zap.String("student", studentRef),
		zap.Time("resume_from", resumeFrom),
		zap.Any("meals", rec.ResumedMeals))
	return nil
}

// Clear removes the student's pause record.
func (r *Reconciler) Clear(ctx context.Context, studentRef string) error {
	return r.Pauses.DeletePause(ctx, studentRef)
}
