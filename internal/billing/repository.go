package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/money"
	"github.com/crewline/crewline/internal/platform/db"
)

// Ensure implementation.
var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository constructs a PostgreSQL backed billing repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const billingConfigColumns = `
	job_id, hourly_rate_net, first_hour_rate_net, notice_fee_net, vat_rate,
	planned_agent_count, billable_hours_calculated, billable_hours_override,
	first_hour_units, revenue_net_snapshot, revenue_vat_snapshot,
	revenue_gross_snapshot, updated_at`

func scanBillingConfig(row pgx.Row) (*BillingConfig, error) {
	var (
		cfg                          BillingConfig
		firstHourRate, hoursOverride decimal.NullDecimal
		snapNet, snapVAT, snapGross  decimal.NullDecimal
	)
	err := row.Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			// Absence of a billing config is a normal not-yet-configured state.
			return nil, nil
		}
		return nil, fmt.Errorf("billing: scan config: %w", err)
	}

	if firstHourRate.Valid {
		cfg.FirstHourRateNet = &firstHourRate.Decimal
	}
	if hoursOverride.Valid {
		cfg.BillableHoursOverride = &hoursOverride.Decimal
	}
	if snapNet.Valid && snapVAT.Valid && snapGross.Valid {
		cfg.Snapshot = &RevenueSnapshot{Net: snapNet.Decimal, VAT: snapVAT.Decimal, Gross: snapGross.Decimal}
	}
	return &cfg, nil
}

func (r *pgRepository) GetBillingConfig(ctx context.Context, jobID int64) (*BillingConfig, error) {
	query := `SELECT ` + billingConfigColumns + ` FROM billing_configs WHERE job_id = $1`
	return scanBillingConfig(r.pool.QueryRow(ctx, query, jobID))
}

// ListAgentHours sums worked hours per agent across the job's invoice lines.
// Only economically real invoice statuses count; draft and void never
// contribute, regardless of their stored amounts.
func (r *pgRepository) ListAgentHours(ctx context.Context, jobID int64) ([]AgentHours, error) {
	const query = `
		SELECT i.agent_id, COALESCE(SUM(li.hours_worked), 0)
		FROM invoice_line_items li
		INNER JOIN invoices i ON i.id = li.invoice_id
		INNER JOIN job_assignments ja ON ja.id = li.job_assignment_id
		WHERE ja.job_id = $1
		  AND i.kind = 'AGENT'
		  AND i.status IN ('SUBMITTED', 'SENT', 'PAID')
		  AND NOT li.voided
		GROUP BY i.agent_id
		ORDER BY i.agent_id`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("billing: list agent hours: %w", err)
	}
	defer rows.Close()

	var out []AgentHours
	for rows.Next() {
		var ah AgentHours
		if err := rows.Scan(&ah.AgentID, &ah.Hours); err != nil {
			return nil, fmt.Errorf("billing: scan agent hours: %w", err)
		}
		out = append(out, ah)
	}
	return out, rows.Err()
}

// invoicedCostRow is one invoice's non-void lines on a job, with the
// document-level figures needed to attribute that invoice's VAT.
type invoicedCostRow struct {
	LineNet decimal.Decimal
	DocNet  decimal.NullDecimal
	DocVAT  decimal.NullDecimal
	VATRate decimal.NullDecimal
}

// invoicedVAT attributes an invoice's VAT to the job's share of its lines.
// The stored vat_amount is authoritative: it is the figure on the document
// and the one the period summary reports, so job-level and period-level
// totals agree on the same invoices. Recomputing from the rate only happens
// for legacy rows that never stored an amount.
func invoicedVAT(row invoicedCostRow) decimal.Decimal {
	if row.DocVAT.Valid {
		if row.DocNet.Valid && row.DocNet.Decimal.IsPositive() && !row.DocNet.Decimal.Equal(row.LineNet) {
			return money.Round2(row.DocVAT.Decimal.Mul(row.LineNet).Div(row.DocNet.Decimal))
		}
		return row.DocVAT.Decimal
	}
	if row.VATRate.Valid {
		return money.VATOf(row.LineNet, row.VATRate.Decimal)
	}
	return decimal.Zero
}

func sumInvoicedCosts(rows []invoicedCostRow) (net, gross decimal.Decimal) {
	var vat decimal.Decimal
	for _, row := range rows {
		net = net.Add(row.LineNet)
		vat = vat.Add(invoicedVAT(row))
	}
	return net, net.Add(vat)
}

// GetJobCosts totals what the job cost: invoiced third-party lines plus
// expenses. Invoiced figures are grouped per document so each invoice's
// stored vat_amount carries through unchanged; an invoice whose lines span
// several jobs has its VAT attributed by net share.
func (r *pgRepository) GetJobCosts(ctx context.Context, jobID int64) (JobCosts, error) {
	const invoicedQuery = `
		SELECT SUM(li.line_net), i.net_amount, i.vat_amount, i.vat_rate
		FROM invoice_line_items li
		INNER JOIN invoices i ON i.id = li.invoice_id
		INNER JOIN job_assignments ja ON ja.id = li.job_assignment_id
		WHERE ja.job_id = $1
		  AND i.status IN ('SUBMITTED', 'SENT', 'PAID')
		  AND NOT li.voided
		GROUP BY i.id
		ORDER BY i.id`

	rows, err := r.pool.Query(ctx, invoicedQuery, jobID)
	if err != nil {
		return JobCosts{}, fmt.Errorf("billing: job invoiced costs: %w", err)
	}
	defer rows.Close()

	var invoiced []invoicedCostRow
	for rows.Next() {
		var row invoicedCostRow
		if err := rows.Scan(&row.LineNet, &row.DocNet, &row.DocVAT, &row.VATRate); err != nil {
			return JobCosts{}, fmt.Errorf("billing: scan invoiced cost: %w", err)
		}
		invoiced = append(invoiced, row)
	}
	if err := rows.Err(); err != nil {
		return JobCosts{}, fmt.Errorf("billing: job invoiced costs: %w", err)
	}

	var costs JobCosts
	costs.InvoicedNet, costs.InvoicedGross = sumInvoicedCosts(invoiced)

	const expenseQuery = `
		SELECT COALESCE(SUM(amount_net), 0), COALESCE(SUM(vat_amount), 0)
		FROM expenses
		WHERE job_id = $1`
	if err := r.pool.QueryRow(ctx, expenseQuery, jobID).Scan(&costs.ExpensesNet, &costs.ExpensesVAT); err != nil {
		return JobCosts{}, fmt.Errorf("billing: job expenses: %w", err)
	}
	return costs, nil
}

func (r *pgRepository) CreateExpense(ctx context.Context, input CreateExpenseInput) (Expense, error) {
	vatAmount := money.VATOf(input.AmountNet, input.VATRate)
	expense := Expense{
		JobID:       input.JobID,
		Description: input.Description,
		AmountNet:   input.AmountNet,
		VATRate:     input.VATRate,
		VATAmount:   vatAmount,
		AmountGross: input.AmountNet.Add(vatAmount),
		IncurredOn:  input.IncurredOn,
	}

	const query = `
		INSERT INTO expenses (job_id, description, amount_net, vat_rate, vat_amount, amount_gross, incurred_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		input.JobID,
		input.Description,
		input.AmountNet,
		input.VATRate,
		expense.VATAmount,
		expense.AmountGross,
		input.IncurredOn,
	).Scan(&expense.ID, &expense.CreatedAt)
	if err != nil {
		return Expense{}, fmt.Errorf("billing: create expense: %w", err)
	}
	return expense, nil
}

func (r *pgRepository) ListExpenses(ctx context.Context, jobID *int64) ([]Expense, error) {
	query := `
		SELECT id, job_id, description, amount_net, vat_rate, vat_amount, amount_gross, incurred_on, created_at
		FROM expenses`
	args := []any{}
	if jobID != nil {
		query += ` WHERE job_id = $1`
		args = append(args, *jobID)
	}
	query += ` ORDER BY incurred_on DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.JobID, &e.Description, &e.AmountNet, &e.VATRate, &e.VATAmount, &e.AmountGross, &e.IncurredOn, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("billing: scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgTxRepository) GetBillingConfigForUpdate(ctx context.Context, jobID int64) (*BillingConfig, error) {
	query := `SELECT ` + billingConfigColumns + ` FROM billing_configs WHERE job_id = $1 FOR UPDATE`
	return scanBillingConfig(r.tx.QueryRow(ctx, query, jobID))
}

func (r *pgTxRepository) UpdateCalculatedHours(ctx context.Context, jobID int64, hours HoursResult) error {
	const query = `
		UPDATE billing_configs
		SET billable_hours_calculated = $2, first_hour_units = $3, updated_at = NOW()
		WHERE job_id = $1`
	tag, err := r.tx.Exec(ctx, query, jobID, hours.TotalHours, hours.FirstHourUnits)
	if err != nil {
		return fmt.Errorf("billing: update calculated hours: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("billing: update calculated hours: job %d has no billing config", jobID)
	}
	return nil
}

// WriteSnapshot freezes the revenue figures and pins the hour count. The
// WHERE clause re-checks that the snapshot columns are still null, so even a
// racing second finaliser cannot overwrite a written snapshot.
func (r *pgTxRepository) WriteSnapshot(ctx context.Context, jobID int64, snap RevenueSnapshot, pinnedHours decimal.Decimal) error {
	const query = `
		UPDATE billing_configs
		SET revenue_net_snapshot = $2,
		    revenue_vat_snapshot = $3,
		    revenue_gross_snapshot = $4,
		    billable_hours_override = $5,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND revenue_net_snapshot IS NULL
		  AND revenue_vat_snapshot IS NULL
		  AND revenue_gross_snapshot IS NULL`
	tag, err := r.tx.Exec(ctx, query, jobID, snap.Net, snap.VAT, snap.Gross, pinnedHours)
	if err != nil {
		return fmt.Errorf("billing: write snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("billing: write snapshot: job %d already locked", jobID)
	}
	return nil
}

func (r *pgTxRepository) ClearSnapshot(ctx context.Context, jobID int64) error {
	const query = `
		UPDATE billing_configs
		SET revenue_net_snapshot = NULL,
		    revenue_vat_snapshot = NULL,
		    revenue_gross_snapshot = NULL,
		    updated_at = NOW()
		WHERE job_id = $1`
	if _, err := r.tx.Exec(ctx, query, jobID); err != nil {
		return fmt.Errorf("billing: clear snapshot: %w", err)
	}
	return nil
}
