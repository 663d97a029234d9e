package entity

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a money value decoded leniently from form payloads.
// It accepts JSON numbers and numeric strings; anything unparseable becomes 0.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			*a = 0
			return nil
		}
	} else {
		raw = string(data)
	}

	*a = Amount(ParseAmount(raw))
	return nil
}

// Float64 returns the amount as a float64
func (a Amount) Float64() float64 {
	return float64(a)
}

// ParseAmount parses a numeric string, defaulting to 0 when it cannot be parsed
// or does not fit a finite float64.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return Finite(d.InexactFloat64())
}

// Finite returns v, or 0 when v is NaN or infinite
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SumAmounts adds amounts without accumulating float error.
// Non-finite values are skipped.
func SumAmounts(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		if v != Finite(v) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}
