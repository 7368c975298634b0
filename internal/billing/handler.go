package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/platform/httpx"
)

// Handler manages billing ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/jobs/{jobID}/hours/aggregate", h.aggregateHours)
	r.Get("/jobs/{jobID}/revenue", h.revenue)
	r.Get("/jobs/{jobID}/profit", h.profit)
	r.Post("/jobs/{jobID}/snapshot", h.lockSnapshot)
	r.Delete("/jobs/{jobID}/snapshot", h.reopenSnapshot)
	r.Post("/expenses", h.createExpense)
	r.Get("/expenses", h.listExpenses)
}

func jobIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
}

func (h *Handler) aggregateHours(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job id must be an integer")
		return
	}

	result, err := h.service.AggregateHours(r.Context(), jobID)
	if err != nil {
		h.respondError(w, "aggregate hours", err)
		return
	}
	if result == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Configured", "job has no billing configuration")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) revenue(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job id must be an integer")
		return
	}

	view, err := h.service.Revenue(r.Context(), jobID)
	if err != nil {
		h.respondError(w, "calculate revenue", err)
		return
	}
	if view == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Configured", "job has no billing configuration")
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) profit(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job id must be an integer")
		return
	}

	result, err := h.service.Profit(r.Context(), jobID)
	if err != nil {
		h.respondError(w, "calculate profit", err)
		return
	}
	if result == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Configured", "job has no billing configuration")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type snapshotResponse struct {
	JobID    int64            `json:"job_id"`
	Locked   bool             `json:"locked"`
	Snapshot *RevenueSnapshot `json:"snapshot"`
}

func (h *Handler) lockSnapshot(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job id must be an integer")
		return
	}

	snap, locked, err := h.service.LockSnapshot(r.Context(), jobID)
	if err != nil {
		h.respondError(w, "lock snapshot", err)
		return
	}
	if snap == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Configured", "job has no billing configuration")
		return
	}
	httpx.JSON(w, http.StatusOK, snapshotResponse{JobID: jobID, Locked: locked, Snapshot: snap})
}

func (h *Handler) reopenSnapshot(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job id must be an integer")
		return
	}
	if err := h.service.ReopenSnapshot(r.Context(), jobID); err != nil {
		h.respondError(w, "reopen snapshot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createExpenseRequest struct {
	JobID       *int64 `json:"job_id"`
	Description string `json:"description" validate:"required,max=500"`
	AmountNet   string `json:"amount_net" validate:"required"`
	VATRate     string `json:"vat_rate" validate:"required"`
	IncurredOn  string `json:"incurred_on"`
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.AmountNet)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount_net must be a decimal")
		return
	}
	rate, err := decimal.NewFromString(req.VATRate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "vat_rate must be a decimal")
		return
	}

	input := CreateExpenseInput{
		JobID:       req.JobID,
		Description: req.Description,
		AmountNet:   amount,
		VATRate:     rate,
	}
	if req.IncurredOn != "" {
		incurred, err := time.Parse("2006-01-02", req.IncurredOn)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "incurred_on must be YYYY-MM-DD")
			return
		}
		input.IncurredOn = incurred
	}

	expense, err := h.service.CreateExpense(r.Context(), input)
	if err != nil {
		h.respondError(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	var jobID *int64
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job_id must be an integer")
			return
		}
		jobID = &id
	}

	expenses, err := h.service.ListExpenses(r.Context(), jobID)
	if err != nil {
		h.respondError(w, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, expenses)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrInvalidInput) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
