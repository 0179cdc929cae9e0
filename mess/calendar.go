/*
Package mess handles the meal-service side of the outpass engine: the
daily meal calendar, the pause/resume reconciliation that mirrors a
student's absence window, and the mess-fee rebate for suppressed meals.

KEY CONCEPTS IN THIS FILE (calendar.go):
  - Meal: a named daily meal (breakfast, lunch, snacks, dinner)
  - TimeOfDay: minutes since midnight, no date component
  - Calendar: meal -> half-open [start, end) time-of-day span

The calendar is static configuration: read-only, non-overlapping within a
day, four entries in the reference deployment. It is injectable so
deployments with different mess timings can override the default.
*/
package mess

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// MEALS
// =============================================================================

type Meal string

const (
	MealBreakfast Meal = "breakfast"
	MealLunch     Meal = "lunch"
	MealSnacks    Meal = "snacks"
	MealDinner    Meal = "dinner"
)

// mealOrder fixes the canonical serving order so reconciliation output is
// deterministic regardless of map iteration.
var mealOrder = map[Meal]int{
	MealBreakfast: 0,
	MealLunch:     1,
	MealSnacks:    2,
	MealDinner:    3,
}

// SortMeals orders meals by serving order, unknown meals last by name.
func SortMeals(meals []Meal) {
	sort.Slice(meals, func(i, j int) bool {
		oi, iOK := mealOrder[meals[i]]
		oj, jOK := mealOrder[meals[j]]
		if iOK && jOK {
			return oi < oj
		}
		if iOK != jOK {
			return iOK
		}
		return meals[i] < meals[j]
	})
}

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is minutes since midnight. The day spans [0, 1440).
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

func At(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

// TimeOfDayOf extracts the time-of-day component of a timestamp.
func TimeOfDayOf(t time.Time) TimeOfDay { return At(t.Hour(), t.Minute()) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Span is a half-open [Start, End) time-of-day interval.
type Span struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps applies the standard half-open interval overlap test.
func (s Span) Overlaps(start, end TimeOfDay) bool {
	return s.Start < end && s.End > start
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar maps each meal to its daily serving span.
type Calendar map[Meal]Span

// DefaultCalendar returns the reference mess timings.
func DefaultCalendar() Calendar {
	return Calendar{
		MealBreakfast: {Start: At(7, 0), End: At(9, 0)},
		MealLunch:     {Start: At(12, 30), End: At(14, 0)},
		MealSnacks:    {Start: At(16, 30), End: At(18, 30)},
		MealDinner:    {Start: At(19, 30), End: At(21, 0)},
	}
}

// MealsOverlapping returns the meals whose span intersects the half-open
// time-of-day window [start, end), in serving order.
func (c Calendar) MealsOverlapping(start, end TimeOfDay) []Meal {
	var meals []Meal
	for meal, span := range c {
		if span.Overlaps(start, end) {
			meals = append(meals, meal)
		}
	}
	SortMeals(meals)
	return meals
}

// Validate checks that spans are well-formed and non-overlapping.
func (c Calendar) Validate() error {
	type entry struct {
		meal Meal
		span Span
	}
	var entries []entry
	for meal, span := range c {
		if span.Start < 0 || span.End > EndOfDay || span.Start >= span.End {
			return fmt.Errorf("meal %s has malformed span %s-%s", meal, span.Start, span.End)
		}
		entries = append(entries, entry{meal, span})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].span.Start < entries[j].span.Start })
	for i := 1; i < len(entries); i++ {
		if entries[i].span.Start < entries[i-1].span.End {
			return fmt.Errorf("meals %s and %s overlap", entries[i-1].meal, entries[i].meal)
		}
	}
	return nil
}
