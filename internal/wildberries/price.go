package wildberries

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
)

// cardRate is the WB Wallet price multiplier.
var cardRate = decimal.RequireFromString("0.9")

var priceRules = newPriceRules()

func newPriceRules() normalize.PriceRules[product] {
	rules := normalize.PriceRules[product]{
		CardRate: cardRate,
		Base: []normalize.Extractor[product, normalize.Pair]{
			sizePrices,
			normalize.PairRule(flatPrices),
		},
		ExtendedList: extendedBasicPrice,
	}
	rules.Adjust = []normalize.Adjuster[product]{
		func(p product, d *normalize.Draft) {
			if d.Discount == nil || !p.ClientSale.Positive() {
				return
			}
			next := normalize.ApplyPercentOff(*d.Discount, p.ClientSale.Value)
			d.Discount = &next
			d.Card = rules.Card(next)
		},
	}
	return rules
}

// sizePrices walks size blocks. The first discounted size wins outright;
// otherwise the last size with a positive price sets the list price.
func sizePrices(p product) (normalize.Pair, bool) {
	var fallback normalize.Pair
	found := false
	for _, s := range p.Sizes {
		if s.Price == nil {
			continue
		}
		basic := normalize.FromMinor(s.Price.Basic)
		prod := normalize.FromMinor(s.Price.Product)
		if prod.IsPositive() && prod.LessThan(basic) {
			return normalize.Pair{List: basic, Sale: prod}, true
		}
		list := basic
		if !list.IsPositive() {
			list = prod
		}
		if list.IsPositive() {
			fallback = normalize.Pair{List: list}
			found = true
		}
	}
	return fallback, found
}

func flatPrices(p product) (decimal.Decimal, decimal.Decimal, bool) {
	if p.PriceU == nil && p.SalePriceU == nil {
		return decimal.Zero, decimal.Zero, false
	}
	var list, sale int64
	if p.PriceU != nil {
		list = *p.PriceU
	}
	if p.SalePriceU != nil {
		sale = *p.SalePriceU
	}
	return normalize.FromMinor(list), normalize.FromMinor(sale), true
}

func extendedBasicPrice(p product) (decimal.Decimal, bool) {
	if p.Extended == nil || p.Extended.BasicPriceU == nil {
		return decimal.Zero, false
	}
	return normalize.FromMinor(*p.Extended.BasicPriceU), true
}

var inventoryRules = normalize.InventoryRules[product]{
	Sources: []normalize.QuantitySource[product]{
		{Extract: stockSum},
		{Extract: func(p product) (int, bool) { return p.TotalQuantity, p.TotalQuantity != 0 }},
		{Extract: func(p product) (int, bool) { return p.Quantity, p.Quantity != 0 }},
		{Extract: func(p product) (int, bool) {
			if p.Extended == nil {
				return 0, false
			}
			return p.Extended.BasicSale, p.Extended.BasicSale != 0
		}},
	},
}

func stockSum(p product) (int, bool) {
	var qtys []int
	for _, s := range p.Sizes {
		for _, st := range s.Stocks {
			qtys = append(qtys, st.Qty)
		}
	}
	return normalize.Sum(qtys)
}

func decodeProduct(hit models.SearchHit) (product, error) {
	var p product
	if err := normalize.Decode(hit.Payload, &p); err != nil {
		return product{}, fmt.Errorf("decode wildberries product %s: %w", hit.ProductID, err)
	}
	return p, nil
}

func (c *Client) ExtractPrice(hit models.SearchHit) (models.PriceInfo, error) {
	p, err := decodeProduct(hit)
	if err != nil {
		return models.PriceInfo{}, fmt.Errorf("%w: %w", normalize.ErrUnnormalizable, err)
	}
	info, err := priceRules.Normalize(p)
	if err != nil {
		return models.PriceInfo{}, fmt.Errorf("wildberries product %s: %w", hit.ProductID, err)
	}
	return info, nil
}

func (c *Client) ExtractQuantity(hit models.SearchHit) models.Inventory {
	p, err := decodeProduct(hit)
	if err != nil {
		return models.Inventory{}
	}
	return inventoryRules.Normalize(p)
}
