// Package core provides the ledger domain types.
//
// This file contains amount parsing and formatting. Amounts are kept as
// decimals in memory and stored as REAL in SQLite.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// maxAmount keeps every stored amount exactly representable in cents as REAL.
var maxAmount = decimal.New(1, 13)

// ValidateAmount accepts whole cents below maxAmount in magnitude.
func ValidateAmount(d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidAmount, d)
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: %s is too large", ErrInvalidAmount, d)
	}
	return nil
}

// ParseAmount converts a user-entered string to a decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// leading sign and a leading currency symbol. Thousands separators are not
// accepted. The result is rounded half-up to two decimal places.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-25")    -> -25 (refund)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") > 1 || (strings.Contains(s, ",") && strings.Contains(s, ".")) {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// FormatAmount renders an amount with two decimals and a dollar sign, e.g. "$12.30" or "-$4.00".
func FormatAmount(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
