/*
handlers.go - HTTP handlers for the outpass engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization and status-code mapping, and delegates everything else to
  the Service.

ERROR HANDLING:
  Engine errors map to HTTP status by category:
  - 400: validation, guard failures that are plainly client mistakes
  - 404: unknown pass, token, or student
  - 409: state conflicts (wrong status, lost race, quota, mutual exclusion)
  - 410: expired token (payload carries requires_regeneration)
  - 500: everything else

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hostelhub/outpass-engine/directory"
	"github.com/hostelhub/outpass-engine/mess"
	"github.com/hostelhub/outpass-engine/outpass"
)

// StudentRegistrar is the write side of the directory, used to seed
// records through the API. The sqlite store implements it.
type StudentRegistrar interface {
	SaveStudent(ctx context.Context, st directory.Student) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *outpass.Service
	Pauses   mess.PauseStore
	Rates    mess.RateCard
	Registry StudentRegistrar
	Logger   *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a handler around the engine service.
func NewHandler(service *outpass.Service, pauses mess.PauseStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  service,
		Pauses:   pauses,
		Rates:    mess.DefaultRates(),
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// OUTPASS LIFECYCLE
// =============================================================================

// Submit handles POST /api/outpasses.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	pass, err := h.Service.Submit(r.Context(), outpass.SubmitInput{
		StudentKey:   req.RollNumber,
		ScheduledOut: req.OutTime,
		ScheduledIn:  req.InTime,
		Reason:       req.Reason,
		Kind:         outpass.Kind(req.Kind),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPassDTO(pass))
}

// Approve handles PUT /api/outpasses/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Reject handles PUT /api/outpasses/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	var req DecideRequest
	if !h.decode(w, r, &req) {
		return
	}

	pass, err := h.Service.Decide(r.Context(), chi.URLParam(r, "id"), approve, req.Approver)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPassDTO(pass))
}

// Regenerate handles POST /api/outpasses/{id}/regenerate.
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	pass, err := h.Service.Regenerate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPassDTO(pass))
}

// GetPass handles GET /api/outpasses/{id}.
func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	pass, err := h.Service.Pass(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPassDTO(pass))
}

// =============================================================================
// STUDENT VIEWS
// =============================================================================

// CurrentPasses handles GET /api/students/{roll}/outpasses/current.
func (h *Handler) CurrentPasses(w http.ResponseWriter, r *http.Request) {
	passes, err := h.Service.CurrentPasses(r.Context(), chi.URLParam(r, "roll"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"current_passes": toPassDTOs(passes)})
}

// History handles GET /api/students/{roll}/outpasses/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	passes, err := h.Service.History(r.Context(), chi.URLParam(r, "roll"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": toPassDTOs(passes)})
}

// RegisterStudent handles POST /api/students. Directory management is an
// external concern; this endpoint only seeds lookup records.
func (h *Handler) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		h.writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "student registry not configured"})
		return
	}

	var req RegisterStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	st := directory.Student{
		ID:           req.ID,
		Roll:         req.RollNumber,
		Name:         req.Name,
		MobileNumber: req.MobileNumber,
		ParentMobile: req.ParentMobile,
	}
	if err := h.Registry.SaveStudent(r.Context(), st); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, st)
}

// Reconcile handles POST /api/students/{roll}/reconcile: the idempotent
// food-pause repair operation.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	roll := chi.URLParam(r, "roll")
	if err := h.Service.ReconcileNow(r.Context(), roll); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reconciled": roll})
}

// =============================================================================
// MESS VIEWS
// =============================================================================

// GetPause handles GET /api/mess/pause/{roll}.
func (h *Handler) GetPause(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Pauses.GetPause(r.Context(), chi.URLParam(r, "roll"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPauseDTO(rec))
}

// GetRebate handles GET /api/mess/rebate/{roll}.
func (h *Handler) GetRebate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Pauses.GetPause(r.Context(), chi.URLParam(r, "roll"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRebateDTO(mess.ComputeRebate(*rec, h.Rates)))
}

// =============================================================================
// CHECKPOINT GATEWAY
// =============================================================================

// ScanOut handles POST /api/scan/out.
func (h *Handler) ScanOut(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !h.decode(w, r, &req) {
		return
	}

	pass, err := h.Service.ScanOut(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg := "student checked out successfully"
	if pass.IsLate {
		msg += " (late exit)"
	}
	h.writeJSON(w, http.StatusOK, ScanDTO{Message: msg, Pass: toPassDTO(pass)})
}

// ScanIn handles POST /api/scan/in.
func (h *Handler) ScanIn(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !h.decode(w, r, &req) {
		return
	}

	pass, err := h.Service.ScanIn(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg := "student checked in successfully"
	if pass.IsLate {
		msg += " (late return)"
	}
	h.writeJSON(w, http.StatusOK, ScanDTO{Message: msg, Pass: toPassDTO(pass)})
}

// Verify handles POST /api/scan/verify: read-only token pre-check.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.Service.Verify(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyDTO{
		Valid:   v.Valid,
		Expired: v.Expired,
		Reason:  v.Reason,
		Pass:    toPassDTO(v.Pass),
	})
}

// =============================================================================
// SECURITY DASHBOARD
// =============================================================================

// ActivePasses handles GET /api/security/active.
func (h *Handler) ActivePasses(w http.ResponseWriter, r *http.Request) {
	passes, err := h.Service.ActivePasses(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"active_passes": toPassDTOs(passes)})
}

// SecurityStats handles GET /api/security/stats.
func (h *Handler) SecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.SecurityStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	recent := make([]ScanEventDTO, len(stats.RecentScans))
	for i, ev := range stats.RecentScans {
		recent[i] = ScanEventDTO{
			PassID:     ev.PassID,
			RollNumber: ev.StudentRef,
			Name:       ev.StudentName,
			Direction:  string(ev.Direction),
			At:         ev.At,
			Late:       ev.Late,
		}
	}
	h.writeJSON(w, http.StatusOK, StatsDTO{
		ApprovedCount:      stats.Approved,
		OutCount:           stats.Out,
		ReturnedTodayCount: stats.ReturnedToday,
		RecentActivity:     recent,
	})
}

// =============================================================================
// RESPONSE PLUMBING
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("response encoding failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	switch {
	case outpass.IsExpired(err):
		var expired *outpass.ExpiredError
		if errors.As(err, &expired) {
			resp.RequiresRegeneration = expired.RequiresRegeneration
		}
		h.writeJSON(w, http.StatusGone, resp)
	case outpass.IsNotFound(err),
		errors.Is(err, directory.ErrStudentNotFound),
		errors.Is(err, mess.ErrNoPause):
		h.writeJSON(w, http.StatusNotFound, resp)
	case outpass.IsConflict(err),
		errors.Is(err, outpass.ErrInvalidTransition),
		errors.Is(err, outpass.ErrAlreadyDecided):
		h.writeJSON(w, http.StatusConflict, resp)
	case outpass.IsClientError(err):
		h.writeJSON(w, http.StatusBadRequest, resp)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
