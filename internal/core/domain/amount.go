package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount limits. Every accepted price fits a decimal128 exactly.
const (
	MaxAmountScale         = 4
	MaxAmountIntegerDigits = 15
	maxAmountDigits        = 34
)

var maxAmount = decimal.New(1, MaxAmountIntegerDigits)

// ValidateAmount checks that d has at most MaxAmountScale decimal places and
// stays below 10^MaxAmountIntegerDigits in magnitude.
func ValidateAmount(d decimal.Decimal) error {
	exp := d.Exponent()
	if d.NumDigits() > maxAmountDigits || exp > MaxAmountIntegerDigits || exp < -maxAmountDigits {
		return fmt.Errorf("%w: too many digits", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(MaxAmountScale)) {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, MaxAmountScale)
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: must be below 1e%d", ErrInvalidAmount, MaxAmountIntegerDigits)
	}
	return nil
}
