package summary

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var fallback = dec("0.20")

func TestReconcileExplicitAmounts(t *testing.T) {
	got := reconcileRow(ThirdPartyInvoiceRow{
		Total:     dec("120.00"),
		NetAmount: decPtr("100.00"),
		VATAmount: decPtr("20.00"),
	}, fallback)

	assert.True(t, got.Net.Equal(dec("100.00")))
	assert.True(t, got.VAT.Equal(dec("20.00")))
	assert.True(t, got.Gross.Equal(dec("120.00")))
}

func TestReconcileVATAmountOnlyTreatsTotalAsGross(t *testing.T) {
	got := reconcileRow(ThirdPartyInvoiceRow{
		Total:     dec("120.00"),
		VATAmount: decPtr("20.00"),
	}, fallback)

	assert.True(t, got.Net.Equal(dec("100.00")))
	assert.True(t, got.VAT.Equal(dec("20.00")))
	assert.True(t, got.Gross.Equal(dec("120.00")))
}

func TestReconcileRegisteredWithRateBacksOut(t *testing.T) {
	got := reconcileRow(ThirdPartyInvoiceRow{
		Total:         dec("115.50"),
		VATRate:       decPtr("0.05"),
		VATRegistered: true,
	}, fallback)

	assert.True(t, got.Net.Equal(dec("110.00")), "net %s", got.Net)
	assert.True(t, got.VAT.Equal(dec("5.50")), "vat %s", got.VAT)
	assert.True(t, got.Gross.Equal(dec("115.50")))
}

func TestReconcileRegisteredWithoutRateUsesFallback(t *testing.T) {
	got := reconcileRow(ThirdPartyInvoiceRow{
		Total:         dec("120.00"),
		VATRegistered: true,
	}, fallback)

	assert.True(t, got.Net.Equal(dec("100.00")), "net %s", got.Net)
	assert.True(t, got.VAT.Equal(dec("20.00")), "vat %s", got.VAT)
}

func TestReconcileUnregisteredIsPureNet(t *testing.T) {
	got := reconcileRow(ThirdPartyInvoiceRow{Total: dec("120.00")}, fallback)

	assert.True(t, got.Net.Equal(dec("120.00")))
	assert.True(t, got.VAT.IsZero())
	assert.True(t, got.Gross.Equal(dec("120.00")))
}

func TestReconcileStoredRateBeatsFallback(t *testing.T) {
	withRate := reconcileRow(ThirdPartyInvoiceRow{
		Total:         dec("121.00"),
		VATRate:       decPtr("0.10"),
		VATRegistered: true,
	}, fallback)

	assert.True(t, withRate.Net.Equal(dec("110.00")), "net %s", withRate.Net)
	assert.True(t, withRate.VAT.Equal(dec("11.00")), "vat %s", withRate.VAT)
}

// Back-out must reassemble the gross exactly, awkward rates included.
func TestReconcileBackOutRoundTrip(t *testing.T) {
	cases := []struct {
		gross string
		rate  string
	}{
		{"100.00", "0.20"},
		{"99.99", "0.20"},
		{"0.01", "0.20"},
		{"123.45", "0.175"},
		{"1000000.37", "0.19"},
	}
	for _, tc := range cases {
		got := reconcileRow(ThirdPartyInvoiceRow{
			Total:         dec(tc.gross),
			VATRate:       decPtr(tc.rate),
			VATRegistered: true,
		}, fallback)
		assert.True(t, got.Net.Add(got.VAT).Equal(dec(tc.gross)),
			"gross %s rate %s: net %s + vat %s", tc.gross, tc.rate, got.Net, got.VAT)
	}
}
