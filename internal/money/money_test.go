package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRound2HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"329.999", "330.00"},
		{"0.125", "0.13"},
		{"10", "10"},
	}
	for _, tc := range cases {
		require.True(t, Round2(dec(tc.in)).Equal(dec(tc.want)), "round %s", tc.in)
	}
}

func TestVATOf(t *testing.T) {
	require.True(t, VATOf(dec("1650"), dec("0.20")).Equal(dec("330.00")))
	require.True(t, VATOf(dec("33.33"), dec("0.20")).Equal(dec("6.67")))
}

func TestBackOutRoundTrip(t *testing.T) {
	cases := []struct {
		gross string
		rate  string
	}{
		{"120.00", "0.20"},
		{"99.99", "0.20"},
		{"1234.56", "0.05"},
		{"0.01", "0.20"},
	}
	for _, tc := range cases {
		gross := dec(tc.gross)
		net, vat := BackOut(gross, dec(tc.rate))
		require.True(t, net.Add(vat).Equal(gross), "gross %s rate %s", tc.gross, tc.rate)
	}
}

func TestBackOutZeroRate(t *testing.T) {
	net, vat := BackOut(dec("50.00"), decimal.Zero)
	require.True(t, net.Equal(dec("50.00")))
	require.True(t, vat.IsZero())
}

func TestMaxZero(t *testing.T) {
	require.True(t, MaxZero(dec("-75")).IsZero())
	require.True(t, MaxZero(dec("75")).Equal(dec("75")))
}
