package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func TestSumInvoicedCostsUsesStoredVAT(t *testing.T) {
	// Two whole invoices at net 33.33 / 20%: each document stores vat 6.67,
	// so the gross is 80.00. Recomputing 1.2*net over the sum would round the
	// other way and report 79.99, a cent off what the documents say.
	rows := []invoicedCostRow{
		{LineNet: dec("33.33"), DocNet: nullDec("33.33"), DocVAT: nullDec("6.67"), VATRate: nullDec("0.20")},
		{LineNet: dec("33.33"), DocNet: nullDec("33.33"), DocVAT: nullDec("6.67"), VATRate: nullDec("0.20")},
	}

	net, gross := sumInvoicedCosts(rows)

	assert.True(t, net.Equal(dec("66.66")), "net %s", net)
	assert.True(t, gross.Equal(dec("80.00")), "gross %s", gross)
}

func TestInvoicedVATApportionedByNetShare(t *testing.T) {
	// Only 40 of the invoice's 100 net sits on this job.
	row := invoicedCostRow{
		LineNet: dec("40"),
		DocNet:  nullDec("100"),
		DocVAT:  nullDec("20.00"),
		VATRate: nullDec("0.20"),
	}

	assert.True(t, invoicedVAT(row).Equal(dec("8.00")))
}

func TestInvoicedVATLegacyRowFallsBackToRate(t *testing.T) {
	row := invoicedCostRow{LineNet: dec("50"), VATRate: nullDec("0.20")}
	assert.True(t, invoicedVAT(row).Equal(dec("10.00")))
}

func TestInvoicedVATWithoutAnyVATDataIsZero(t *testing.T) {
	row := invoicedCostRow{LineNet: dec("50")}
	assert.True(t, invoicedVAT(row).IsZero())

	net, gross := sumInvoicedCosts([]invoicedCostRow{row})
	assert.True(t, net.Equal(gross))
}

func TestSumInvoicedCostsEmpty(t *testing.T) {
	net, gross := sumInvoicedCosts(nil)
	assert.True(t, net.IsZero())
	assert.True(t, gross.IsZero())
}
