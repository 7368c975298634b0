package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/crewline/crewline/internal/billing"
)

// ErrInvalidInput rejects bad window arguments before any read.
var ErrInvalidInput = errors.New("summary: invalid input")

// Store caches computed summaries. A nil Store disables caching.
type Store interface {
	Get(ctx context.Context, from, to time.Time) (*PeriodSummary, bool)
	Set(ctx context.Context, s PeriodSummary)
}

// Service computes period financial summaries.
type Service struct {
	repo         Repository
	store        Store
	logger       *slog.Logger
	fallbackRate decimal.Decimal
}

// NewService builds a Service instance. fallbackRate is the standard VAT rate
// assumed for VAT-registered payees whose invoices predate rate storage.
func NewService(repo Repository, store Store, logger *slog.Logger, fallbackRate decimal.Decimal) *Service {
	return &Service{repo: repo, store: store, logger: logger, fallbackRate: fallbackRate}
}

// Summary reconstructs the financial picture of [from, to]. Revenue prefers
// locked snapshots over live recomputation, so a job that has both contributes
// exactly once. The three source aggregates load concurrently.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (PeriodSummary, error) {
	if from.IsZero() || to.IsZero() {
		return PeriodSummary{}, fmt.Errorf("%w: from and to are required", ErrInvalidInput)
	}
	if to.Before(from) {
		return PeriodSummary{}, fmt.Errorf("%w: to precedes from", ErrInvalidInput)
	}

	if s.store != nil {
		if cached, ok := s.store.Get(ctx, from, to); ok {
			return *cached, nil
		}
	}

	var (
		configs  []billing.BillingConfig
		expenses Totals
		invoices []ThirdPartyInvoiceRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		configs, err = s.repo.ListBillingConfigs(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.SumExpenses(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = s.repo.ListThirdPartyInvoices(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return PeriodSummary{}, err
	}

	result := PeriodSummary{From: from, To: to, Expenses: expenses}

	for _, cfg := range configs {
		result.Revenue = result.Revenue.Add(revenueFor(cfg))
	}
	for _, row := range invoices {
		result.ThirdParty = result.ThirdParty.Add(reconcileRow(row, s.fallbackRate))
	}

	result.Costs = result.Expenses.Add(result.ThirdParty)
	result.Profit = Totals{
		Net:   result.Revenue.Net.Sub(result.Costs.Net),
		VAT:   result.Revenue.VAT.Sub(result.Costs.VAT),
		Gross: result.Revenue.Gross.Sub(result.Costs.Gross),
	}
	result.VAT = VATReconciliation{
		Output: result.Revenue.VAT,
		Input:  result.Expenses.VAT.Add(result.ThirdParty.VAT),
	}
	result.VAT.Due = result.VAT.Output.Sub(result.VAT.Input)

	if s.store != nil {
		s.store.Set(ctx, result)
	}
	return result, nil
}

// revenueFor uses the frozen snapshot when the job is locked, else the live
// formula on the same config.
func revenueFor(cfg billing.BillingConfig) Totals {
	if cfg.Locked() {
		return Totals{Net: cfg.Snapshot.Net, VAT: cfg.Snapshot.VAT, Gross: cfg.Snapshot.Gross}
	}
	r := billing.CalculateRevenue(cfg)
	return Totals{Net: r.Net, VAT: r.VAT, Gross: r.Gross}
}
