package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput rejects bad arguments before any database write.
	ErrInvalidInput = errors.New("billing: invalid input")
)

// Repository defines billing data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetBillingConfig(ctx context.Context, jobID int64) (*BillingConfig, error)
	ListAgentHours(ctx context.Context, jobID int64) ([]AgentHours, error)
	GetJobCosts(ctx context.Context, jobID int64) (JobCosts, error)

	CreateExpense(ctx context.Context, input CreateExpenseInput) (Expense, error)
	ListExpenses(ctx context.Context, jobID *int64) ([]Expense, error)
}

// TxRepository defines billing operations within a transaction.
type TxRepository interface {
	GetBillingConfigForUpdate(ctx context.Context, jobID int64) (*BillingConfig, error)
	UpdateCalculatedHours(ctx context.Context, jobID int64, hours HoursResult) error
	WriteSnapshot(ctx context.Context, jobID int64, snap RevenueSnapshot, pinnedHours decimal.Decimal) error
	ClearSnapshot(ctx context.Context, jobID int64) error
}

// CacheInvalidator is notified after money-affecting writes so cached period
// summaries never serve stale figures across writers.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service handles billing ledger business logic.
type Service struct {
	repo       Repository
	policy     Policy
	logger     *slog.Logger
	invalidate CacheInvalidator
}

// NewService builds a Service instance.
func NewService(repo Repository, policy Policy, logger *slog.Logger, invalidate CacheInvalidator) *Service {
	return &Service{repo: repo, policy: policy, logger: logger, invalidate: invalidate}
}

// RevenueView pairs the live calculation with the frozen snapshot, if any.
type RevenueView struct {
	JobID     int64            `json:"job_id"`
	Locked    bool             `json:"locked"`
	Breakdown RevenueBreakdown `json:"breakdown"`
	Snapshot  *RevenueSnapshot `json:"snapshot,omitempty"`
}

// AggregateHours sums worked hours across this job's economically real
// invoices and persists the derived fields. A missing BillingConfig is a
// normal not-yet-configured state and yields a nil result, not an error.
func (s *Service) AggregateHours(ctx context.Context, jobID int64) (*HoursResult, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("%w: job id must be positive", ErrInvalidInput)
	}

	cfg, err := s.repo.GetBillingConfig(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	perAgent, err := s.repo.ListAgentHours(ctx, jobID)
	if err != nil {
		return nil, err
	}

	total, units, agents := sumAgentHours(perAgent)
	result := HoursResult{
		JobID:          jobID,
		TotalHours:     total,
		FirstHourUnits: units,
		AgentCount:     agents,
	}
	if agents != cfg.PlannedAgentCount {
		result.Warnings = append(result.Warnings, headcountWarning(jobID, agents, cfg.PlannedAgentCount))
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateCalculatedHours(ctx, jobID, result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Revenue returns the current revenue calculation for a job, alongside the
// snapshot when the job is locked. Nil when the job has no billing config.
func (s *Service) Revenue(ctx context.Context, jobID int64) (*RevenueView, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("%w: job id must be positive", ErrInvalidInput)
	}
	cfg, err := s.repo.GetBillingConfig(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}
	return &RevenueView{
		JobID:     jobID,
		Locked:    cfg.Locked(),
		Breakdown: CalculateRevenue(*cfg),
		Snapshot:  cfg.Snapshot,
	}, nil
}

// Profit combines revenue with invoiced agent costs and expenses. Locked jobs
// use their snapshot figures so later invoice edits never move a finalised
// job's reported profit.
func (s *Service) Profit(ctx context.Context, jobID int64) (*ProfitResult, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("%w: job id must be positive", ErrInvalidInput)
	}
	cfg, err := s.repo.GetBillingConfig(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	revenue := CalculateRevenue(*cfg)
	if cfg.Snapshot != nil {
		revenue.Net = cfg.Snapshot.Net
		revenue.VAT = cfg.Snapshot.VAT
		revenue.Gross = cfg.Snapshot.Gross
	}

	costs, err := s.repo.GetJobCosts(ctx, jobID)
	if err != nil {
		return nil, err
	}

	result := calculateProfit(jobID, revenue, costs, s.policy)
	return &result, nil
}

// LockSnapshot freezes the job's revenue figures. The check and the write run
// in one transaction with the config row locked, so concurrent finalise calls
// cannot both write. Re-running on a locked job returns the existing snapshot
// unchanged; locking is idempotent, never destructive.
func (s *Service) LockSnapshot(ctx context.Context, jobID int64) (*RevenueSnapshot, bool, error) {
	if jobID <= 0 {
		return nil, false, fmt.Errorf("%w: job id must be positive", ErrInvalidInput)
	}

	var (
		snap   *RevenueSnapshot
		locked bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cfg, err := tx.GetBillingConfigForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return nil
		}
		if cfg.Snapshot != nil {
			snap = cfg.Snapshot
			return nil
		}

		breakdown := CalculateRevenue(*cfg)
		fresh := RevenueSnapshot{Net: breakdown.Net, VAT: breakdown.VAT, Gross: breakdown.Gross}
		if err := tx.WriteSnapshot(ctx, jobID, fresh, cfg.BillableHoursCalculated); err != nil {
			return err
		}
		snap = &fresh
		locked = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if locked {
		s.bumpCache(ctx)
		s.logger.Info("revenue snapshot locked", slog.Int64("job_id", jobID))
	}
	return snap, locked, nil
}

// ReopenSnapshot clears the frozen figures. This is the only path that makes
// a locked job calculable again.
func (s *Service) ReopenSnapshot(ctx context.Context, jobID int64) error {
	if jobID <= 0 {
		return fmt.Errorf("%w: job id must be positive", ErrInvalidInput)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ClearSnapshot(ctx, jobID)
	})
	if err != nil {
		return err
	}
	s.bumpCache(ctx)
	s.logger.Info("revenue snapshot reopened", slog.Int64("job_id", jobID))
	return nil
}

// CreateExpense records an ad hoc cost with derived VAT fields.
func (s *Service) CreateExpense(ctx context.Context, input CreateExpenseInput) (Expense, error) {
	if input.AmountNet.IsNegative() {
		return Expense{}, fmt.Errorf("%w: expense amount must not be negative", ErrInvalidInput)
	}
	if input.VATRate.IsNegative() {
		return Expense{}, fmt.Errorf("%w: vat rate must not be negative", ErrInvalidInput)
	}
	if input.JobID != nil && *input.JobID <= 0 {
		return Expense{}, fmt.Errorf("%w: job id must be positive", ErrInvalidInput)
	}
	if input.IncurredOn.IsZero() {
		input.IncurredOn = time.Now().UTC()
	}

	expense, err := s.repo.CreateExpense(ctx, input)
	if err != nil {
		return Expense{}, err
	}
	s.bumpCache(ctx)
	return expense, nil
}

// ListExpenses returns expenses, optionally filtered by job.
func (s *Service) ListExpenses(ctx context.Context, jobID *int64) ([]Expense, error) {
	return s.repo.ListExpenses(ctx, jobID)
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.invalidate == nil {
		return
	}
	if err := s.invalidate.Bump(ctx); err != nil {
		s.logger.Warn("summary cache invalidation", slog.Any("error", err))
	}
}
