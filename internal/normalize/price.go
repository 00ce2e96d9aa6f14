package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

// Pair is a list price with an optional sale price, both in currency units.
// A zero Sale means no sale price was present.
type Pair struct {
	List decimal.Decimal
	Sale decimal.Decimal
}

// Draft is the price state threaded through the rule chain.
type Draft struct {
	List         decimal.Decimal
	Discount     *decimal.Decimal
	Card         decimal.Decimal
	CardDiscount bool
	CardPayment  bool
}

// Adjuster mutates a draft after the base price is settled. Adjusters run in
// order and each may read what earlier ones produced.
type Adjuster[P any] func(P, *Draft)

// PriceRules describes one marketplace's price precedence.
type PriceRules[P any] struct {
	// CardRate is the loyalty-card multiplier applied to the effective price.
	CardRate decimal.Decimal
	// Base yields the list/sale pair; the first extractor with a value wins.
	Base []Extractor[P, Pair]
	// ExtendedList, when present and lower than the base list price, replaces
	// it. It is also used verbatim when no Base extractor matched.
	ExtendedList Extractor[P, decimal.Decimal]
	// Adjust runs last, typically for client or loyalty percentages.
	Adjust []Adjuster[P]
}

// Card returns floor(d × rate) at two decimal places.
func (r PriceRules[P]) Card(d decimal.Decimal) decimal.Decimal {
	return FloorCents(d.Mul(r.CardRate))
}

// Normalize applies the rules to payload.
func (r PriceRules[P]) Normalize(payload P) (models.PriceInfo, error) {
	var draft Draft
	found := false

	if pair, ok := First(payload, r.Base); ok {
		found = true
		r.applyPair(&draft, pair)
	}

	if r.ExtendedList != nil {
		if ext, ok := r.ExtendedList(payload); ok {
			if !found || (ext.IsPositive() && ext.LessThan(draft.List)) {
				draft.List = ext
				draft.Card = r.Card(ext)
				draft.CardPayment = true
			}
			found = true
		}
	}

	if !found {
		return models.PriceInfo{}, fmt.Errorf("price: %w", ErrUnnormalizable)
	}

	for _, adjust := range r.Adjust {
		adjust(payload, &draft)
	}

	return draft.finish(), nil
}

func (r PriceRules[P]) applyPair(draft *Draft, pair Pair) {
	if pair.Sale.IsPositive() && pair.Sale.LessThan(pair.List) {
		sale := pair.Sale
		draft.List = pair.List
		draft.Discount = &sale
		draft.Card = r.Card(sale)
		draft.CardDiscount = true
		draft.CardPayment = true
		return
	}
	if pair.List.IsPositive() {
		draft.List = pair.List
	} else {
		draft.List = pair.Sale
	}
	draft.Card = r.Card(draft.List)
}

// PairRule reports a pair only when it yields a positive price, so a later
// extractor gets a chance when this one is empty.
func PairRule[P any](read func(P) (list, sale decimal.Decimal, ok bool)) Extractor[P, Pair] {
	return func(p P) (Pair, bool) {
		list, sale, ok := read(p)
		if !ok || (!list.IsPositive() && !sale.IsPositive()) {
			return Pair{}, false
		}
		return Pair{List: list, Sale: sale}, true
	}
}

func (d Draft) finish() models.PriceInfo {
	price := d.List
	if price.IsNegative() {
		price = decimal.Zero
	}
	info := models.PriceInfo{
		Price:           price,
		HasCardDiscount: d.CardDiscount,
		HasCardPayment:  d.CardPayment,
	}
	if d.Discount != nil && d.Discount.IsPositive() && d.Discount.LessThan(price) {
		discount := *d.Discount
		info.DiscountPrice = &discount
	}
	if d.CardDiscount {
		card := d.Card
		info.CardPrice = &card
	}
	return info
}
