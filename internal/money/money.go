// Package money owns the single rounding rule of the billing ledger. Every
// monetary calculation goes through Round2 so net, VAT and gross figures stay
// consistent no matter which component produced them.
package money

import "github.com/shopspring/decimal"

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// Round2 rounds to two decimal places, half up. Amounts in the ledger are
// non-negative, so decimal's round-half-away-from-zero is exactly half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// VATOf applies a VAT rate to a net amount and rounds the result. This is the
// only step of the revenue formula that rounds; intermediate sums stay exact.
func VATOf(net, rate decimal.Decimal) decimal.Decimal {
	return Round2(net.Mul(rate))
}

// BackOut splits a gross amount into net and VAT for the given rate. The VAT
// part is the remainder after rounding the net, so net + vat equals gross
// exactly.
func BackOut(gross, rate decimal.Decimal) (net, vat decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(rate)
	if divisor.IsZero() {
		return gross, decimal.Zero
	}
	net = Round2(gross.Div(divisor))
	vat = gross.Sub(net)
	return net, vat
}

// MaxZero returns d when positive, zero otherwise.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
