/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the internal domain
  model from the external contract.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  the validator before touching the engine. The engine re-checks its own
  business invariants regardless.
*/
package api

import (
	"time"

	"github.com/hostelhub/outpass-engine/mess"
	"github.com/hostelhub/outpass-engine/outpass"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitRequest is a resident's leave application.
type SubmitRequest struct {
	RollNumber string    `json:"roll_number" validate:"required"`
	OutTime    time.Time `json:"out_time" validate:"required"`
	InTime     time.Time `json:"in_time" validate:"required"`
	Reason     string    `json:"reason" validate:"required"`
	Kind       string    `json:"kind" validate:"required,oneof=short-leave home-leave"`
}

// DecideRequest names the approver resolving a pending pass.
type DecideRequest struct {
	Approver string `json:"approver" validate:"required"`
}

// ScanRequest carries the QR token read at a checkpoint.
type ScanRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterStudentRequest seeds a directory record.
type RegisterStudentRequest struct {
	ID           string `json:"id" validate:"required"`
	RollNumber   string `json:"roll_number" validate:"required"`
	Name         string `json:"name" validate:"required"`
	MobileNumber string `json:"mobile_number"`
	ParentMobile string `json:"parent_mobile"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PassDTO is the API view of a pass.
type PassDTO struct {
	ID            string     `json:"id"`
	RollNumber    string     `json:"roll_number"`
	Name          string     `json:"name"`
	OutTime       time.Time  `json:"out_time"`
	InTime        time.Time  `json:"in_time"`
	Status        string     `json:"status"`
	Kind          string     `json:"kind"`
	Reason        string     `json:"reason"`
	Token         string     `json:"token,omitempty"`
	IsLate        bool       `json:"is_late"`
	ActualOut     *time.Time `json:"actual_out_time,omitempty"`
	ActualIn      *time.Time `json:"actual_in_time,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	RegeneratedAt *time.Time `json:"regenerated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toPassDTO(p *outpass.Pass) PassDTO {
	return PassDTO{
		ID:            p.ID,
		RollNumber:    p.StudentRef,
		Name:          p.StudentName,
		OutTime:       p.ScheduledOut,
		InTime:        p.ScheduledIn,
		Status:        string(p.Status),
		Kind:          string(p.Kind),
		Reason:        p.Reason,
		Token:         p.Token,
		IsLate:        p.IsLate,
		ActualOut:     p.ActualOut,
		ActualIn:      p.ActualIn,
		ApprovedAt:    p.ApprovedAt,
		ApprovedBy:    p.ApprovedBy,
		RegeneratedAt: p.RegeneratedAt,
		CreatedAt:     p.CreatedAt,
	}
}

func toPassDTOs(passes []*outpass.Pass) []PassDTO {
	dtos := make([]PassDTO, len(passes))
	for i, p := range passes {
		dtos[i] = toPassDTO(p)
	}
	return dtos
}

// VerifyDTO is the read-only token pre-check result.
type VerifyDTO struct {
	Valid   bool    `json:"valid"`
	Expired bool    `json:"expired"`
	Reason  string  `json:"expiration_reason,omitempty"`
	Pass    PassDTO `json:"outpass"`
}

// ScanDTO acknowledges an accepted checkpoint scan.
type ScanDTO struct {
	Message string  `json:"message"`
	Pass    PassDTO `json:"outpass"`
}

// PauseDTO is the API view of a food pause record.
type PauseDTO struct {
	RollNumber   string   `json:"roll_number"`
	PauseFrom    string   `json:"pause_from"`
	ResumeFrom   string   `json:"resume_from"`
	PausedMeals  []string `json:"paused_meals"`
	ResumedMeals []string `json:"resumed_meals"`
}

func toPauseDTO(rec *mess.PauseRecord) PauseDTO {
	return PauseDTO{
		RollNumber:   rec.StudentRef,
		PauseFrom:    rec.PauseFrom.Format("2006-01-02"),
		ResumeFrom:   rec.ResumeFrom.Format("2006-01-02"),
		PausedMeals:  mealNames(rec.PausedMeals),
		ResumedMeals: mealNames(rec.ResumedMeals),
	}
}

func mealNames(meals []mess.Meal) []string {
	names := make([]string, len(meals))
	for i, m := range meals {
		names[i] = string(m)
	}
	return names
}

// RebateDTO is the mess-fee credit for a paused span. Amounts are decimal
// strings to keep clients from rounding money.
type RebateDTO struct {
	RollNumber string            `json:"roll_number"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Days       int               `json:"days"`
	PerMeal    map[string]string `json:"per_meal"`
	Total      string            `json:"total"`
}

func toRebateDTO(r mess.Rebate) RebateDTO {
	perMeal := make(map[string]string, len(r.PerMeal))
	for meal, amount := range r.PerMeal {
		perMeal[string(meal)] = amount.StringFixed(2)
	}
	return RebateDTO{
		RollNumber: r.StudentRef,
		From:       r.From.Format("2006-01-02"),
		To:         r.To.Format("2006-01-02"),
		Days:       r.Days,
		PerMeal:    perMeal,
		Total:      r.Total.StringFixed(2),
	}
}

// ScanEventDTO is one audit log entry.
type ScanEventDTO struct {
	PassID     string    `json:"pass_id"`
	RollNumber string    `json:"roll_number"`
	Name       string    `json:"name"`
	Direction  string    `json:"direction"`
	At         time.Time `json:"at"`
	Late       bool      `json:"late"`
}

// StatsDTO is the security dashboard summary.
type StatsDTO struct {
	ApprovedCount      int            `json:"approved_count"`
	OutCount           int            `json:"out_count"`
	ReturnedTodayCount int            `json:"returned_today_count"`
	RecentActivity     []ScanEventDTO `json:"recent_activity"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error                string `json:"error"`
	RequiresRegeneration bool   `json:"requires_regeneration,omitempty"`
}
