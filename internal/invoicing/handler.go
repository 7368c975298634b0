package invoicing

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

// Handler manages invoice document endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/agents/{agentID}/invoice-number/suggest", h.suggestNumber)
	r.Post("/invoices/agent", h.createAgentInvoice)
	r.Post("/invoices/supplier", h.createSupplierInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/void", h.voidInvoice)
}

type lineItemRequest struct {
	JobAssignmentID int64  `json:"job_assignment_id" validate:"required,gt=0"`
	HoursWorked     string `json:"hours_worked" validate:"required"`
	RateNet         string `json:"rate_net" validate:"required"`
	Headcount       int    `json:"headcount" validate:"required,gte=1"`
}

type createAgentInvoiceRequest struct {
	AgentID         int64             `json:"agent_id" validate:"required,gt=0"`
	RequestedNumber *int64            `json:"requested_number"`
	VATRate         *string           `json:"vat_rate"`
	VATRegistered   bool              `json:"vat_registered"`
	IssueDate       string            `json:"issue_date"`
	Lines           []lineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

type createSupplierInvoiceRequest struct {
	SupplierID    int64             `json:"supplier_id" validate:"required,gt=0"`
	Prefix        string            `json:"prefix" validate:"required,max=8"`
	Year          int               `json:"year" validate:"required"`
	VATRate       *string           `json:"vat_rate"`
	VATRegistered bool              `json:"vat_registered"`
	IssueDate     string            `json:"issue_date"`
	Lines         []lineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

// duplicateNumberResponse is the 409 payload for a consumed agent number.
type duplicateNumberResponse struct {
	Title     string `json:"title"`
	AgentID   int64  `json:"agent_id"`
	Requested int64  `json:"requested"`
	Current   int64  `json:"current"`
	Suggested int64  `json:"suggested"`
}

// duplicateClaimResponse is the 409 payload naming the shifts already billed.
type duplicateClaimResponse struct {
	Title                    string  `json:"title"`
	ConflictingAssignmentIDs []int64 `json:"conflicting_assignment_ids"`
}

func (h *Handler) suggestNumber(w http.ResponseWriter, r *http.Request) {
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "agent id must be an integer")
		return
	}

	suggestion, err := h.service.SuggestAgentNumber(r.Context(), agentID)
	if err != nil {
		h.respondError(w, "suggest number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestion)
}

func (h *Handler) createAgentInvoice(w http.ResponseWriter, r *http.Request) {
	var req createAgentInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateAgentInvoiceInput{
		AgentID:         req.AgentID,
		RequestedNumber: req.RequestedNumber,
		VATRegistered:   req.VATRegistered,
	}
	var err error
	if input.VATRate, err = parseOptionalDecimal(req.VATRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "vat_rate must be a decimal")
		return
	}
	if input.IssueDate, err = parseOptionalDate(req.IssueDate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "issue_date must be YYYY-MM-DD")
		return
	}
	if input.Lines, err = parseLines(req.Lines); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.CreateAgentInvoice(r.Context(), input)
	if err != nil {
		h.respondError(w, "create agent invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) createSupplierInvoice(w http.ResponseWriter, r *http.Request) {
	var req createSupplierInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateSupplierInvoiceInput{
		SupplierID:    req.SupplierID,
		Prefix:        req.Prefix,
		Year:          req.Year,
		VATRegistered: req.VATRegistered,
	}
	var err error
	if input.VATRate, err = parseOptionalDecimal(req.VATRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "vat_rate must be a decimal")
		return
	}
	if input.IssueDate, err = parseOptionalDate(req.IssueDate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "issue_date must be YYYY-MM-DD")
		return
	}
	if input.Lines, err = parseLines(req.Lines); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.CreateSupplierInvoice(r.Context(), input)
	if err != nil {
		h.respondError(w, "create supplier invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	if err := h.service.VoidInvoice(r.Context(), id); err != nil {
		h.respondError(w, "void invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOptionalDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseOptionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func parseLines(reqs []lineItemRequest) ([]LineItemInput, error) {
	lines := make([]LineItemInput, 0, len(reqs))
	for _, req := range reqs {
		hours, err := decimal.NewFromString(req.HoursWorked)
		if err != nil {
			return nil, errors.New("hours_worked must be a decimal")
		}
		rate, err := decimal.NewFromString(req.RateNet)
		if err != nil {
			return nil, errors.New("rate_net must be a decimal")
		}
		lines = append(lines, LineItemInput{
			JobAssignmentID: req.JobAssignmentID,
			HoursWorked:     hours,
			RateNet:         rate,
			Headcount:       req.Headcount,
		})
	}
	return lines, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var (
		dupNumber *DuplicateNumberError
		dupClaim  *DuplicateClaimError
	)
	switch {
	case errors.As(err, &dupNumber):
		httpx.JSON(w, http.StatusConflict, duplicateNumberResponse{
			Title:     "Duplicate Invoice Number",
			AgentID:   dupNumber.AgentID,
			Requested: dupNumber.Requested,
			Current:   dupNumber.Current,
			Suggested: dupNumber.Suggested,
		})
	case errors.As(err, &dupClaim):
		httpx.JSON(w, http.StatusConflict, duplicateClaimResponse{
			Title:                    "Assignments Already Billed",
			ConflictingAssignmentIDs: dupClaim.AssignmentIDs,
		})
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrLockTimeout):
		httpx.Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
