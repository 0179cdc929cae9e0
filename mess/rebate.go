/*
rebate.go - Mess-fee rebate for suppressed meals

PURPOSE:
  A paused meal is money the student did not eat. This file turns a pause
  record into a credit: per-meal daily rates multiplied by the number of
  suppressed days. Uses decimal arithmetic throughout; mess fees must not
  accumulate float error.

DAY COUNTING:
  Meals are suppressed from PauseFrom up to but not including ResumeFrom.
  A same-day pass (PauseFrom == ResumeFrom) still suppressed meals on that
  one day, so the count never drops below one while a record exists.
*/
package mess

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateCard maps each meal to its daily mess-fee rate.
type RateCard map[Meal]decimal.Decimal

// DefaultRates returns the reference per-meal daily rates.
func DefaultRates() RateCard {
	return RateCard{
		MealBreakfast: decimal.NewFromInt(30),
		MealLunch:     decimal.NewFromInt(55),
		MealSnacks:    decimal.NewFromInt(20),
		MealDinner:    decimal.NewFromInt(50),
	}
}

// Rebate is the computed credit for one pause record.
type Rebate struct {
	StudentRef string
	From       time.Time
	To         time.Time
	Days       int
	PerMeal    map[Meal]decimal.Decimal
	Total      decimal.Decimal
}

// ComputeRebate prices a pause record against a rate card. Meals without
// a configured rate contribute nothing.
func ComputeRebate(rec PauseRecord, rates RateCard) Rebate {
	days := int(rec.ResumeFrom.Sub(rec.PauseFrom).Hours() / 24)
	if days < 1 {
		days = 1
	}

	perMeal := make(map[Meal]decimal.Decimal, len(rec.PausedMeals))
	total := decimal.Zero
	dayCount := decimal.NewFromInt(int64(days))

	for _, meal := range rec.PausedMeals {
		rate, ok := rates[meal]
		if !ok {
			continue
		}
		credit := rate.Mul(dayCount)
		perMeal[meal] = credit
		total = total.Add(credit)
	}

	return Rebate{
		StudentRef: rec.StudentRef,
		From:       rec.PauseFrom,
		To:         rec.ResumeFrom,
		Days:       days,
		PerMeal:    perMeal,
		Total:      total,
	}
}
