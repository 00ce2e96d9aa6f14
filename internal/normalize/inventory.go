package normalize

import "github.com/lukman83/kidkazz-catalog/internal/models"

// QuantitySource is one place a payload may report stock.
type QuantitySource[P any] struct {
	Extract Extractor[P, int]
	// Raise lifts an already non-zero quantity to this source's value when
	// larger. Ordinary sources only fill a quantity that is still zero.
	Raise bool
}

// InventoryRules lists a marketplace's stock sources in priority order.
type InventoryRules[P any] struct {
	Sources []QuantitySource[P]
}

// Normalize returns the first non-zero quantity, adjusted by any Raise
// sources. With no positive source the product is unavailable.
func (r InventoryRules[P]) Normalize(payload P) models.Inventory {
	quantity := 0
	for _, src := range r.Sources {
		if src.Extract == nil {
			continue
		}
		v, ok := src.Extract(payload)
		if !ok || v <= 0 {
			continue
		}
		switch {
		case src.Raise:
			quantity = max(quantity, v)
		case quantity == 0:
			quantity = v
		}
	}
	return models.Inventory{Quantity: quantity, IsAvailable: quantity > 0}
}

// Sum adds up the positive values; ok is false when values is empty.
func Sum(values []int) (int, bool) {
	if len(values) == 0 {
		return 0, false
	}
	total := 0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	return total, true
}
