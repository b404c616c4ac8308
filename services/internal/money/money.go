// Package money holds the bounds of the decimal(20,6) amount and balance
// columns.
package money

import (
	"fmt"

	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of decimal places a column keeps.
	Scale = 6
	// IntegerDigits is the number of digits a column keeps left of the point.
	IntegerDigits = 14
)

var limit = decimal.New(1, IntegerDigits)

// Fits reports whether d is stored without rounding or overflow.
func Fits(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale)) && d.Abs().LessThan(limit)
}

// Check returns InvalidAmount when d does not fit a column. what names the
// value in the message.
func Check(what string, d decimal.Decimal) error {
	if Fits(d) {
		return nil
	}
	return errkind.InvalidAmount(fmt.Sprintf("%s %s must have at most %d integer digits and %d decimal places", what, d, IntegerDigits, Scale))
}
