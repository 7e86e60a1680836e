package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest currency unit (centimes for DZD).
type Money int64

// Quantity is a line-item unit count.
type Quantity int

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrRateOutOfRange  = errors.New("commission rate must be between 0 and 100")
	ErrRatePrecision   = errors.New("commission rate allows at most 3 decimal places")
	ErrTotalMismatch   = errors.New("total must equal subtotal plus delivery fee")
	ErrMoneyOverflow   = errors.New("amount overflows")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxRate  = hundred
	maxMoney = decimal.NewFromInt(1<<63 - 1)
)

// RateScale matches the decimal(6,3) rate columns.
const RateScale = 3

func (m Money) Validate() error {
	if m < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, m)
	}
	return nil
}

func (q Quantity) Validate() error {
	if q <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, q)
	}
	return nil
}

// Times returns m*q, failing instead of wrapping around.
func (m Money) Times(q Quantity) (Money, error) {
	p := decimal.NewFromInt(int64(m)).Mul(decimal.NewFromInt(int64(q)))
	if p.GreaterThan(maxMoney) {
		return 0, ErrMoneyOverflow
	}
	return Money(p.IntPart()), nil
}

// ValidateRate checks that a percentage lies in [0, 100] and fits the stored
// scale.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxRate) {
		return fmt.Errorf("%w: %s", ErrRateOutOfRange, rate.String())
	}
	if !rate.Equal(rate.Round(RateScale)) {
		return fmt.Errorf("%w: %s", ErrRatePrecision, rate.String())
	}
	return nil
}

// CommissionFor is the single place commission amounts are computed:
// subtotal * rate / 100, rounded half-up to the smallest currency unit.
func CommissionFor(subtotal Money, rate decimal.Decimal) (Money, error) {
	if err := subtotal.Validate(); err != nil {
		return 0, err
	}
	if err := ValidateRate(rate); err != nil {
		return 0, err
	}
	// Round is half away from zero, which is half-up for non-negative values.
	c := decimal.NewFromInt(int64(subtotal)).Mul(rate).Div(hundred).Round(0)
	return Money(c.IntPart()), nil
}
