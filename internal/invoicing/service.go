package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/money"
)

// CacheInvalidator is notified after document writes so cached period
// summaries never serve stale figures across writers.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service handles invoice document creation and numbering.
type Service struct {
	repo       Repository
	logger     *slog.Logger
	invalidate CacheInvalidator
	now        func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger, invalidate CacheInvalidator) *Service {
	return &Service{repo: repo, logger: logger, invalidate: invalidate, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// SuggestAgentNumber returns the agent's next free number as a suggestion.
// Purely advisory: nothing is reserved until commit.
func (s *Service) SuggestAgentNumber(ctx context.Context, agentID int64) (NumberSuggestion, error) {
	if agentID <= 0 {
		return NumberSuggestion{}, fmt.Errorf("%w: agent id must be positive", ErrInvalidInput)
	}
	current, err := s.repo.GetAgentSequence(ctx, agentID)
	if err != nil {
		return NumberSuggestion{}, err
	}
	return NumberSuggestion{AgentID: agentID, Current: current, Suggested: current + 1}, nil
}

// CreateAgentInvoice creates an agent invoice under the agent's own sequence.
// The chosen number is either the caller's override or the suggestion; reuse
// of a consumed number fails with DuplicateNumberError and a fresh
// suggestion. On success the counter advances to max(current, N) so future
// suggestions never go backward, even after the agent jumps ahead.
func (s *Service) CreateAgentInvoice(ctx context.Context, input CreateAgentInvoiceInput) (Invoice, error) {
	if input.AgentID <= 0 {
		return Invoice{}, fmt.Errorf("%w: agent id must be positive", ErrInvalidInput)
	}
	if err := validateLines(input.Lines); err != nil {
		return Invoice{}, err
	}
	if input.RequestedNumber != nil && *input.RequestedNumber <= 0 {
		return Invoice{}, fmt.Errorf("%w: invoice number must be positive", ErrInvalidInput)
	}
	if input.VATRate != nil && input.VATRate.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: vat rate must not be negative", ErrInvalidInput)
	}
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now().UTC()
	}

	var (
		inv      Invoice
		chosenID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.AgentSequenceForUpdate(ctx, input.AgentID)
		if err != nil {
			return err
		}

		number := current + 1
		if input.RequestedNumber != nil {
			number = *input.RequestedNumber
		}
		chosenID = number

		agentID := input.AgentID
		inv = buildInvoice(KindAgent, input.VATRate, input.VATRegistered, issueDate, input.Lines)
		inv.AgentID = &agentID
		inv.AgentNumber = &number

		if err := tx.InsertInvoice(ctx, &inv); err != nil {
			return err
		}
		if err := insertLines(ctx, tx, &inv, input.Lines); err != nil {
			return err
		}
		if number > current {
			return tx.SetAgentSequence(ctx, input.AgentID, number)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, s.conflictDetails(ctx, err, input.AgentID, chosenID, input.Lines)
	}

	s.bumpCache(ctx)
	s.logger.Info("agent invoice created",
		slog.Int64("agent_id", input.AgentID),
		slog.Int64("number", chosenID),
		slog.String("public_id", inv.PublicID.String()))
	return inv, nil
}

// CreateSupplierInvoice creates a supplier invoice numbered from the
// (prefix, year) sequence. The sequence row stays locked until this
// transaction finishes, so a rollback consumes no number.
func (s *Service) CreateSupplierInvoice(ctx context.Context, input CreateSupplierInvoiceInput) (Invoice, error) {
	if input.SupplierID <= 0 {
		return Invoice{}, fmt.Errorf("%w: supplier id must be positive", ErrInvalidInput)
	}
	if input.Prefix == "" {
		return Invoice{}, fmt.Errorf("%w: sequence prefix required", ErrInvalidInput)
	}
	if input.Year < 2000 || input.Year > 2999 {
		return Invoice{}, fmt.Errorf("%w: year %d out of range", ErrInvalidInput, input.Year)
	}
	if err := validateLines(input.Lines); err != nil {
		return Invoice{}, err
	}
	if input.VATRate != nil && input.VATRate.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: vat rate must not be negative", ErrInvalidInput)
	}
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now().UTC()
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, input.Prefix, input.Year)
		if err != nil {
			return err
		}
		docNumber := FormatDocNumber(input.Prefix, input.Year, seq)

		supplierID := input.SupplierID
		inv = buildInvoice(KindSupplier, input.VATRate, input.VATRegistered, issueDate, input.Lines)
		inv.SupplierID = &supplierID
		inv.DocNumber = &docNumber

		if err := tx.InsertInvoice(ctx, &inv); err != nil {
			return err
		}
		return insertLines(ctx, tx, &inv, input.Lines)
	})
	if err != nil {
		return Invoice{}, s.conflictDetails(ctx, err, 0, 0, input.Lines)
	}

	s.bumpCache(ctx)
	s.logger.Info("supplier invoice created",
		slog.Int64("supplier_id", input.SupplierID),
		slog.String("number", *inv.DocNumber))
	return inv, nil
}

// VoidInvoice voids a document and releases its assignment claims.
func (s *Service) VoidInvoice(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invoice id must be positive", ErrInvalidInput)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkVoid(ctx, id)
	})
	if err != nil {
		return err
	}
	s.bumpCache(ctx)
	s.logger.Info("invoice voided", slog.Int64("invoice_id", id))
	return nil
}

// GetInvoice returns a document with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func validateLines(lines []LineItemInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line item required", ErrInvalidInput)
	}
	for _, line := range lines {
		if line.JobAssignmentID <= 0 {
			return fmt.Errorf("%w: job assignment id must be positive", ErrInvalidInput)
		}
		if line.HoursWorked.IsNegative() {
			return fmt.Errorf("%w: hours worked must not be negative", ErrInvalidInput)
		}
		if line.RateNet.IsNegative() {
			return fmt.Errorf("%w: rate must not be negative", ErrInvalidInput)
		}
		if line.Headcount < 1 {
			return fmt.Errorf("%w: headcount must be at least 1", ErrInvalidInput)
		}
	}
	return nil
}

// buildInvoice derives the document totals from its lines.
func buildInvoice(kind InvoiceKind, vatRate *decimal.Decimal, vatRegistered bool, issueDate time.Time, lines []LineItemInput) Invoice {
	var net decimal.Decimal
	for _, line := range lines {
		net = net.Add(money.Round2(line.HoursWorked.Mul(line.RateNet)))
	}

	inv := Invoice{
		PublicID:      uuid.New(),
		Kind:          kind,
		Status:        StatusSubmitted,
		NetAmount:     net,
		VATRegistered: vatRegistered,
		IssueDate:     issueDate,
		TotalAmount:   net,
	}
	if vatRate != nil {
		rate := *vatRate
		vat := money.VATOf(net, rate)
		inv.VATRate = &rate
		inv.VATAmount = &vat
		inv.TotalAmount = net.Add(vat)
	}
	return inv
}

func insertLines(ctx context.Context, tx TxRepository, inv *Invoice, lines []LineItemInput) error {
	for _, input := range lines {
		line := LineItem{
			InvoiceID:       inv.ID,
			JobAssignmentID: input.JobAssignmentID,
			HoursWorked:     input.HoursWorked,
			RateNet:         input.RateNet,
			LineNet:         money.Round2(input.HoursWorked.Mul(input.RateNet)),
			Headcount:       input.Headcount,
		}
		if err := tx.InsertLineItem(ctx, &line); err != nil {
			return err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return nil
}

// conflictDetails converts the in-transaction duplicate markers into typed
// errors carrying the conflict set, queried after the rollback completed.
func (s *Service) conflictDetails(ctx context.Context, err error, agentID, requested int64, lines []LineItemInput) error {
	switch {
	case errors.Is(err, errDuplicateNumber):
		current, seqErr := s.repo.GetAgentSequence(ctx, agentID)
		if seqErr != nil {
			s.logger.Warn("resolve duplicate number details", slog.Any("error", seqErr))
		}
		return &DuplicateNumberError{AgentID: agentID, Requested: requested, Current: current, Suggested: current + 1}
	case errors.Is(err, errDuplicateClaim):
		ids := make([]int64, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.JobAssignmentID)
		}
		claimed, claimErr := s.repo.ClaimedAssignments(ctx, ids)
		if claimErr != nil {
			s.logger.Warn("resolve claim conflict details", slog.Any("error", claimErr))
			claimed = ids
		}
		return &DuplicateClaimError{AssignmentIDs: claimed}
	default:
		return err
	}
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.invalidate == nil {
		return
	}
	if err := s.invalidate.Bump(ctx); err != nil {
		s.logger.Warn("summary cache invalidation", slog.Any("error", err))
	}
}
