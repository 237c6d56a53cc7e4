package models

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Number of decimal places kept in minor units
const minorUnitsExp = 2

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Amount of money in minor units (paise)
// Floating point is never used to hold balances
type Amount int64

// Units converts whole currency units into Amount
func Units(n int64) Amount {
	return Amount(n * 100)
}

// ParseAmount parses decimal text like "150" or "12.50"
// More than two decimal places is an error, not a rounding
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("can't parse amount %q: %w", s, err)
	}

	return AmountFromDecimal(d)
}

func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(minorUnitsExp)

	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), minorUnitsExp)
	}
	if minor.Abs().GreaterThan(maxAmount) {
		return 0, errors.New("amount is out of range")
	}

	return Amount(minor.IntPart()), nil
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorUnitsExp)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(minorUnitsExp)
}

// MarshalJSON renders amount as a JSON number in major units
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

// UnmarshalJSON accepts JSON number or string in major units
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)

	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}

	*a = parsed
	return nil
}
