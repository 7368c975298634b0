package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/billing"
)

// Repository defines the period summary's read surface.
type Repository interface {
	ListBillingConfigs(ctx context.Context, from, to time.Time) ([]billing.BillingConfig, error)
	SumExpenses(ctx context.Context, from, to time.Time) (Totals, error)
	ListThirdPartyInvoices(ctx context.Context, from, to time.Time) ([]ThirdPartyInvoiceRow, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed summary repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// ListBillingConfigs returns the billing configs of jobs scheduled inside the
// window, snapshot columns included so the service can prefer frozen figures.
func (r *pgRepository) ListBillingConfigs(ctx context.Context, from, to time.Time) ([]billing.BillingConfig, error) {
	const query = `
		SELECT bc.job_id, bc.hourly_rate_net, bc.first_hour_rate_net, bc.notice_fee_net,
		       bc.vat_rate, bc.planned_agent_count, bc.billable_hours_calculated,
		       bc.billable_hours_override, bc.first_hour_units,
		       bc.revenue_net_snapshot, bc.revenue_vat_snapshot, bc.revenue_gross_snapshot,
		       bc.updated_at
		FROM billing_configs bc
		INNER JOIN jobs j ON j.id = bc.job_id
		WHERE j.scheduled_on BETWEEN $1 AND $2
		ORDER BY bc.job_id`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("summary: list billing configs: %w", err)
	}
	defer rows.Close()

	var out []billing.BillingConfig
	for rows.Next() {
		var (
			cfg                          billing.BillingConfig
			firstHourRate, hoursOverride decimal.NullDecimal
			snapNet, snapVAT, snapGross  decimal.NullDecimal
		)
		err := rows.Scan(
			&cfg.JobID,
			&cfg.HourlyRateNet,
			&firstHourRate,
			&cfg.NoticeFeeNet,
			&cfg.VATRate,
			&cfg.PlannedAgentCount,
			&cfg.BillableHoursCalculated,
			&hoursOverride,
			&cfg.FirstHourUnits,
			&snapNet,
			&snapVAT,
			&snapGross,
			&cfg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("summary: scan billing config: %w", err)
		}
		if firstHourRate.Valid {
			cfg.FirstHourRateNet = &firstHourRate.Decimal
		}
		if hoursOverride.Valid {
			cfg.BillableHoursOverride = &hoursOverride.Decimal
		}
		if snapNet.Valid && snapVAT.Valid && snapGross.Valid {
			cfg.Snapshot = &billing.RevenueSnapshot{Net: snapNet.Decimal, VAT: snapVAT.Decimal, Gross: snapGross.Decimal}
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *pgRepository) SumExpenses(ctx context.Context, from, to time.Time) (Totals, error) {
	const query = `
		SELECT COALESCE(SUM(amount_net), 0), COALESCE(SUM(vat_amount), 0), COALESCE(SUM(amount_gross), 0)
		FROM expenses
		WHERE incurred_on BETWEEN $1 AND $2`

	var t Totals
	if err := r.pool.QueryRow(ctx, query, from, to).Scan(&t.Net, &t.VAT, &t.Gross); err != nil {
		return Totals{}, fmt.Errorf("summary: sum expenses: %w", err)
	}
	return t, nil
}

// ListThirdPartyInvoices returns the period's economically real agent and
// supplier invoices with whatever VAT fields each row carries.
func (r *pgRepository) ListThirdPartyInvoices(ctx context.Context, from, to time.Time) ([]ThirdPartyInvoiceRow, error) {
	const query = `
		SELECT id, total_amount, net_amount, vat_amount, vat_rate, payee_vat_registered
		FROM invoices
		WHERE issue_date BETWEEN $1 AND $2
		  AND status IN ('SUBMITTED', 'SENT', 'PAID')
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("summary: list invoices: %w", err)
	}
	defer rows.Close()

	var out []ThirdPartyInvoiceRow
	for rows.Next() {
		var (
			row            ThirdPartyInvoiceRow
			net, vat, rate decimal.NullDecimal
		)
		if err := rows.Scan(&row.InvoiceID, &row.Total, &net, &vat, &rate, &row.VATRegistered); err != nil {
			return nil, fmt.Errorf("summary: scan invoice: %w", err)
		}
		if net.Valid {
			row.NetAmount = &net.Decimal
		}
		if vat.Valid {
			row.VATAmount = &vat.Decimal
		}
		if rate.Valid {
			row.VATRate = &rate.Decimal
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
