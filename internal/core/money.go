// Package core provides money parsing and handling utilities.
//
// Amounts are kept as shopspring decimals so sums over a ledger do not drift.
// Float conversion happens only at the edge of the numeric models.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a non-currency-aware decimal amount.
type Money struct {
	Amount decimal.Decimal
}

// Zero money value.
var Zero = Money{Amount: decimal.Zero}

// NewMoneyFromFloat builds Money from a float, rounded to cents.
func NewMoneyFromFloat(f float64) Money {
	return Money{Amount: decimal.NewFromFloat(f).Round(2)}
}

// NewMoneyFromCents builds Money from an integer number of cents.
func NewMoneyFromCents(cents int64) Money {
	return Money{Amount: decimal.New(cents, -2)}
}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero to two decimals. Negative values are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
//	ParseMoney("-1")     -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: d.Round(2)}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount.Add(other.Amount)}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Float64 returns the amount as a float for numeric models.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

// Cents returns the amount in integer cents.
func (m Money) Cents() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

// String formats the amount with two decimals.
func (m Money) String() string {
	return m.Amount.StringFixed(2)
}

func (m Money) Validate() error {
	if m.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
