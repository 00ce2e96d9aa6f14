package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a lenient JSON numeric field. It accepts plain numbers, numeric
// strings with currency decoration such as "1 990 ₽", and objects wrapping
// the number under one of the keys rate, count, value or price. Anything
// else decodes to an invalid Number without an error.
type Number struct {
	Value decimal.Decimal
	Valid bool
}

var wrapperKeys = []string{"rate", "count", "value", "price"}

var priceNoise = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\u2009", "",
	"₽", "",
	"руб.", "",
	"руб", "",
)

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*n = ParseNumber(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
		for _, k := range wrapperKeys {
			if raw, ok := obj[k]; ok {
				return n.UnmarshalJSON(raw)
			}
		}
	case 't', 'f', '[':
		return nil
	default:
		if d, err := decimal.NewFromString(string(b)); err == nil {
			*n = Number{Value: d, Valid: true}
		}
	}
	return nil
}

// ParseNumber parses a human formatted amount. Commas are treated as the
// decimal separator.
func ParseNumber(s string) Number {
	clean := priceNoise.Replace(strings.TrimSpace(s))
	clean = strings.ReplaceAll(clean, ",", ".")
	if clean == "" {
		return Number{}
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return Number{}
	}
	return Number{Value: d, Valid: true}
}

// Decimal returns the value, or zero when invalid.
func (n Number) Decimal() decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Value
}

func (n Number) Float() float64 {
	f, _ := n.Decimal().Float64()
	return f
}

func (n Number) Int() int {
	return int(n.Decimal().IntPart())
}

// Positive reports whether the number is valid and greater than zero.
func (n Number) Positive() bool {
	return n.Valid && n.Value.IsPositive()
}
