package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"smallbiznis-affiliate/services/internal/errkind"
)

func TestFits(t *testing.T) {
	cases := []struct {
		in   string
		fits bool
	}{
		{"100", true},
		{"0.000001", true},
		{"1.5000000", true},
		{"12345678901234.123456", true},
		{"99999999999999.999999", true},
		{"-99999999999999.999999", true},
		{"0.0000001", false},
		{"1.1234567", false},
		{"100000000000000", false},
		{"99999999999999999999", false},
		{"-100000000000000", false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.fits, Fits(decimal.RequireFromString(tc.in)), tc.in)
	}
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check("amount", decimal.RequireFromString("10.25")))

	err := Check("amount", decimal.RequireFromString("1.1234567"))
	require.ErrorIs(t, err, errkind.ErrInvalidAmount)
	require.Contains(t, err.Error(), "amount 1.1234567")
}
