package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/socertis/bnpl-simulator/internal/amortize"
	"github.com/socertis/bnpl-simulator/internal/middleware"
	"github.com/socertis/bnpl-simulator/internal/models"
	"github.com/socertis/bnpl-simulator/internal/service"
)

const dateLayout = "2006-01-02"

// Handler exposes the service over HTTP.
type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

// NewHandler initializes a new handler
func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps core errors to transport codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalidInput *amortize.InvalidInputError
	var amortErr *amortize.AmortizationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalidInput):
		status = http.StatusBadRequest
	case errors.As(err, &amortErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrAlreadyPaid):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func identityOr401(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	}
	return identity, ok
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, models.Role(req.Role))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreatePlan handles payment plan creation
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	var req struct {
		CustomerEmail    string          `json:"customer_email"`
		Principal        decimal.Decimal `json:"principal"`
		AnnualRate       decimal.Decimal `json:"annual_rate"`
		InstallmentCount int             `json:"installment_count"`
		StartDate        string          `json:"start_date"`
		Cadence          string          `json:"cadence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		h.writeError(w, &amortize.InvalidInputError{Field: "start_date", Reason: "must be YYYY-MM-DD"})
		return
	}

	plan, err := h.svc.CreatePlan(r.Context(), identity, service.CreatePlanRequest{
		CustomerEmail:    req.CustomerEmail,
		Principal:        req.Principal,
		AnnualRate:       req.AnnualRate,
		InstallmentCount: req.InstallmentCount,
		StartDate:        startDate,
		Cadence:          models.Cadence(req.Cadence),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// ListPlans lists the plans visible to the caller
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	plans, err := h.svc.ListPlans(r.Context(), identity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// GetPlan returns one plan with installments and a summary block
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	planID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	plan, err := h.svc.GetPlan(r.Context(), identity, planID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":    plan,
		"summary": plan.Summarize(),
	})
}

// CancelPlan cancels a plan and its unpaid installments
func (h *Handler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	planID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	if err := h.svc.CancelPlan(r.Context(), identity, planID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// PayInstallment handles an installment payment
func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	installmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid installment id", http.StatusBadRequest)
		return
	}
	result, err := h.svc.PayInstallment(r.Context(), identity, installmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RevertInstallment puts a paid installment back to pending
func (h *Handler) RevertInstallment(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	installmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid installment id", http.StatusBadRequest)
		return
	}
	inst, err := h.svc.RevertInstallment(r.Context(), identity, installmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// DeleteInstallment removes an installment
func (h *Handler) DeleteInstallment(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	installmentID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid installment id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteInstallment(r.Context(), identity, installmentID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OverdueSweep marks all overdue installments late
func (h *Handler) OverdueSweep(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	if !identity.IsMerchant() {
		h.writeError(w, service.ErrForbidden)
		return
	}
	affected, err := h.svc.MarkAllOverdue(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"affected": affected})
}

// OverdueReport returns the overdue aggregation
func (h *Handler) OverdueReport(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	if !identity.IsMerchant() {
		h.writeError(w, service.ErrForbidden)
		return
	}
	report, err := h.svc.OverdueReport(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Dashboard returns role-dependent statistics
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Dashboard(r.Context(), identity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// MerchantReport returns the calling merchant's payment report
func (h *Handler) MerchantReport(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOr401(w, r)
	if !ok {
		return
	}
	report, err := h.svc.MerchantReport(r.Context(), identity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
