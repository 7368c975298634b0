package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingConfig is the per-job billing contract. Snapshot is nil until the job
// is locked; once set, no calculation may overwrite it — only an explicit
// reopen clears it.
type BillingConfig struct {
	JobID                   int64
	HourlyRateNet           decimal.Decimal
	FirstHourRateNet        *decimal.Decimal
	NoticeFeeNet            decimal.Decimal
	VATRate                 decimal.Decimal
	PlannedAgentCount       int
	BillableHoursCalculated decimal.Decimal
	BillableHoursOverride   *decimal.Decimal
	FirstHourUnits          int
	Snapshot                *RevenueSnapshot
	UpdatedAt               time.Time
}

// RevenueSnapshot holds the frozen revenue figures of a finalised job.
type RevenueSnapshot struct {
	Net   decimal.Decimal `json:"net"`
	VAT   decimal.Decimal `json:"vat"`
	Gross decimal.Decimal `json:"gross"`
}

// Locked reports whether the job's revenue figures are frozen.
func (c BillingConfig) Locked() bool {
	return c.Snapshot != nil
}

// EffectiveHours returns the manual override when pinned, else the calculated
// hours.
func (c BillingConfig) EffectiveHours() decimal.Decimal {
	if c.BillableHoursOverride != nil {
		return *c.BillableHoursOverride
	}
	return c.BillableHoursCalculated
}

// EffectiveFirstHourRate defaults to the standard hourly rate when no premium
// rate is configured.
func (c BillingConfig) EffectiveFirstHourRate() decimal.Decimal {
	if c.FirstHourRateNet != nil {
		return *c.FirstHourRateNet
	}
	return c.HourlyRateNet
}

// RevenueBreakdown is the result of the tiered revenue formula.
type RevenueBreakdown struct {
	Base      decimal.Decimal `json:"base"`
	Uplift    decimal.Decimal `json:"uplift"`
	NoticeFee decimal.Decimal `json:"notice_fee"`
	Net       decimal.Decimal `json:"net"`
	VAT       decimal.Decimal `json:"vat"`
	Gross     decimal.Decimal `json:"gross"`
}

// AgentHours is one agent's summed worked hours on a job.
type AgentHours struct {
	AgentID int64
	Hours   decimal.Decimal
}

// HoursResult is the outcome of aggregating a job's invoiced hours.
type HoursResult struct {
	JobID          int64           `json:"job_id"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	FirstHourUnits int             `json:"first_hour_units"`
	AgentCount     int             `json:"agent_count"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// JobCosts aggregates what a job cost the business.
type JobCosts struct {
	InvoicedNet   decimal.Decimal
	InvoicedGross decimal.Decimal
	ExpensesNet   decimal.Decimal
	ExpensesVAT   decimal.Decimal
}

// ProfitResult combines revenue and costs for a job.
type ProfitResult struct {
	JobID          int64            `json:"job_id"`
	Revenue        RevenueBreakdown `json:"revenue"`
	CostsNet       decimal.Decimal  `json:"costs_net"`
	CostsGross     decimal.Decimal  `json:"costs_gross"`
	ProfitNet      decimal.Decimal  `json:"profit_net"`
	ProfitGross    decimal.Decimal  `json:"profit_gross"`
	MarginNetPct   decimal.Decimal  `json:"margin_net_pct"`
	MarginGrossPct decimal.Decimal  `json:"margin_gross_pct"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// Expense is an ad hoc cost recorded by an admin, optionally linked to a job.
type Expense struct {
	ID          int64           `json:"id"`
	JobID       *int64          `json:"job_id,omitempty"`
	Description string          `json:"description"`
	AmountNet   decimal.Decimal `json:"amount_net"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	AmountGross decimal.Decimal `json:"amount_gross"`
	IncurredOn  time.Time       `json:"incurred_on"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateExpenseInput carries a new expense.
type CreateExpenseInput struct {
	JobID       *int64
	Description string
	AmountNet   decimal.Decimal
	VATRate     decimal.Decimal
	IncurredOn  time.Time
}

// Policy holds the configured business thresholds behind profit warnings.
type Policy struct {
	MarginLowPct        decimal.Decimal
	MarginVeryLowPct    decimal.Decimal
	ExpenseRatioWarnPct decimal.Decimal
}
