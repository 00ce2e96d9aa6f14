// Package normalize turns the inconsistent price and availability shapes of
// marketplace payloads into canonical values.
//
// Each marketplace describes where its numbers live as ordered lists of small
// extractor functions over its own payload type. The rules here apply those
// lists in precedence order; they never look at raw JSON themselves.
package normalize

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnnormalizable is returned when a payload carries no usable price.
var ErrUnnormalizable = errors.New("product cannot be normalized")

// Extractor reads one optional value out of a payload of type P.
type Extractor[P, T any] func(P) (T, bool)

// First returns the result of the first extractor that reports a value.
func First[P, T any](payload P, chain []Extractor[P, T]) (T, bool) {
	for _, extract := range chain {
		if extract == nil {
			continue
		}
		if v, ok := extract(payload); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var hundred = decimal.NewFromInt(100)

// FromMinor converts an amount in minor currency units (kopecks) to units.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FloorCents truncates d toward negative infinity at two decimal places.
func FloorCents(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(2)
}

// ApplyPercentOff returns floor(d × (1 − pct/100)) at two decimal places.
func ApplyPercentOff(d, pct decimal.Decimal) decimal.Decimal {
	return FloorCents(d.Mul(hundred.Sub(pct)).Div(hundred))
}
