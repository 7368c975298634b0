package summary

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals is a net/VAT/gross money triple.
type Totals struct {
	Net   decimal.Decimal `json:"net"`
	VAT   decimal.Decimal `json:"vat"`
	Gross decimal.Decimal `json:"gross"`
}

// Add returns the element-wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Net:   t.Net.Add(o.Net),
		VAT:   t.VAT.Add(o.VAT),
		Gross: t.Gross.Add(o.Gross),
	}
}

// VATReconciliation is the period's VAT position: output VAT charged on
// revenue minus input VAT paid on costs.
type VATReconciliation struct {
	Output decimal.Decimal `json:"output"`
	Input  decimal.Decimal `json:"input"`
	Due    decimal.Decimal `json:"due"`
}

// PeriodSummary is the financial picture of a [from, to] window.
type PeriodSummary struct {
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Revenue    Totals            `json:"revenue"`
	Expenses   Totals            `json:"expenses"`
	ThirdParty Totals            `json:"third_party"`
	Costs      Totals            `json:"costs"`
	Profit     Totals            `json:"profit"`
	VAT        VATReconciliation `json:"vat"`
}

// ThirdPartyInvoiceRow is one agent or supplier invoice as stored. The schema
// grew over time, so older rows carry only a subset of the VAT fields; the
// reconciliation ladder in reconcile.go resolves each variant exactly once.
type ThirdPartyInvoiceRow struct {
	InvoiceID     int64
	Total         decimal.Decimal
	NetAmount     *decimal.Decimal
	VATAmount     *decimal.Decimal
	VATRate       *decimal.Decimal
	VATRegistered bool
}
