package summary

import (
	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/money"
)

// vatBasis names which VAT fields a stored invoice row actually carries.
// Resolving the variant once here keeps the field-presence probing out of the
// aggregation logic.
type vatBasis int

const (
	// basisExplicit: net and VAT amounts both stored, use them as-is.
	basisExplicit vatBasis = iota
	// basisVATAmountOnly: only a VAT amount stored, total is gross.
	basisVATAmountOnly
	// basisRegisteredRate: VAT-registered payee with a stored rate, back out
	// net/VAT from the gross total.
	basisRegisteredRate
	// basisRegisteredFallback: VAT-registered payee with no stored rate, back
	// out using the configured standard rate.
	basisRegisteredFallback
	// basisNetOnly: nothing to go on, the total is pure net with zero VAT.
	basisNetOnly
)

func classify(row ThirdPartyInvoiceRow) vatBasis {
	switch {
	case row.NetAmount != nil && row.VATAmount != nil:
		return basisExplicit
	case row.VATAmount != nil:
		return basisVATAmountOnly
	case row.VATRegistered && row.VATRate != nil:
		return basisRegisteredRate
	case row.VATRegistered:
		return basisRegisteredFallback
	default:
		return basisNetOnly
	}
}

// reconcileRow resolves a stored invoice row into a net/VAT/gross triple,
// applying fallbackRate when the payee is VAT-registered but the row predates
// rate storage.
func reconcileRow(row ThirdPartyInvoiceRow, fallbackRate decimal.Decimal) Totals {
	switch classify(row) {
	case basisExplicit:
		return Totals{
			Net:   *row.NetAmount,
			VAT:   *row.VATAmount,
			Gross: row.NetAmount.Add(*row.VATAmount),
		}
	case basisVATAmountOnly:
		return Totals{
			Net:   row.Total.Sub(*row.VATAmount),
			VAT:   *row.VATAmount,
			Gross: row.Total,
		}
	case basisRegisteredRate:
		net, vat := money.BackOut(row.Total, *row.VATRate)
		return Totals{Net: net, VAT: vat, Gross: row.Total}
	case basisRegisteredFallback:
		net, vat := money.BackOut(row.Total, fallbackRate)
		return Totals{Net: net, VAT: vat, Gross: row.Total}
	default:
		return Totals{Net: row.Total, Gross: row.Total}
	}
}
