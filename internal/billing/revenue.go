package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/money"
)

var hundred = decimal.NewFromInt(100)

// CalculateRevenue applies the tiered billing formula. Intermediate sums stay
// exact; rounding happens at the VAT step only. The first-hour uplift is a
// premium, never a discount: a premium rate below the standard rate clamps to
// zero rather than reducing revenue.
func CalculateRevenue(cfg BillingConfig) RevenueBreakdown {
	hours := cfg.EffectiveHours()
	base := hours.Mul(cfg.HourlyRateNet)

	premium := money.MaxZero(cfg.EffectiveFirstHourRate().Sub(cfg.HourlyRateNet))
	uplift := decimal.NewFromInt(int64(cfg.FirstHourUnits)).Mul(premium)

	net := base.Add(uplift).Add(cfg.NoticeFeeNet)
	vat := money.VATOf(net, cfg.VATRate)

	return RevenueBreakdown{
		Base:      base,
		Uplift:    uplift,
		NoticeFee: cfg.NoticeFeeNet,
		Net:       net,
		VAT:       vat,
		Gross:     net.Add(vat),
	}
}

// calculateProfit derives profit and margins from a revenue breakdown and the
// job's cost aggregates, attaching the configured business-rule warnings.
// Warnings are operator information, never errors.
func calculateProfit(jobID int64, revenue RevenueBreakdown, costs JobCosts, policy Policy) ProfitResult {
	costsNet := costs.InvoicedNet.Add(costs.ExpensesNet)
	costsGross := costs.InvoicedGross.Add(costs.ExpensesNet).Add(costs.ExpensesVAT)

	result := ProfitResult{
		JobID:       jobID,
		Revenue:     revenue,
		CostsNet:    costsNet,
		CostsGross:  costsGross,
		ProfitNet:   revenue.Net.Sub(costsNet),
		ProfitGross: revenue.Gross.Sub(costsGross),
	}

	if !revenue.Net.IsZero() {
		result.MarginNetPct = money.Round2(result.ProfitNet.Div(revenue.Net).Mul(hundred))
	}
	if !revenue.Gross.IsZero() {
		result.MarginGrossPct = money.Round2(result.ProfitGross.Div(revenue.Gross).Mul(hundred))
	}

	if result.ProfitNet.IsNegative() {
		result.Warnings = append(result.Warnings, fmt.Sprintf("job %d: negative profit, costs %s exceed net revenue %s", jobID, costsNet, revenue.Net))
	}
	if !revenue.Net.IsZero() {
		switch {
		case result.MarginNetPct.LessThan(policy.MarginVeryLowPct):
			result.Warnings = append(result.Warnings, fmt.Sprintf("job %d: net margin %s%% below critical threshold %s%%", jobID, result.MarginNetPct, policy.MarginVeryLowPct))
		case result.MarginNetPct.LessThan(policy.MarginLowPct):
			result.Warnings = append(result.Warnings, fmt.Sprintf("job %d: net margin %s%% below threshold %s%%", jobID, result.MarginNetPct, policy.MarginLowPct))
		}

		expenseRatio := money.Round2(costs.ExpensesNet.Div(revenue.Net).Mul(hundred))
		if expenseRatio.GreaterThan(policy.ExpenseRatioWarnPct) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("job %d: expenses are %s%% of net revenue, warn threshold %s%%", jobID, expenseRatio, policy.ExpenseRatioWarnPct))
		}
	}

	return result
}
