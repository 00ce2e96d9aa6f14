package ozon

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
)

// cardRate is the Ozon Card price multiplier.
var cardRate = decimal.RequireFromString("0.95")

var priceRules = normalize.PriceRules[product]{
	CardRate: cardRate,
	Base: []normalize.Extractor[product, normalize.Pair]{
		normalize.PairRule(func(p product) (decimal.Decimal, decimal.Decimal, bool) {
			if p.Price.Block == nil {
				return decimal.Zero, decimal.Zero, false
			}
			return p.Price.Block.OriginalPrice.Decimal(), p.Price.Block.Price.Decimal(), true
		}),
		normalize.PairRule(func(p product) (decimal.Decimal, decimal.Decimal, bool) {
			if p.Prices == nil {
				return decimal.Zero, decimal.Zero, false
			}
			return p.Prices.Original.Decimal(), p.Prices.Discounted.Decimal(), true
		}),
		topLevelPrices,
	},
	Adjust: []normalize.Adjuster[product]{cardActions, cardPromos},
}

// topLevelPrices reads flat originalPrice/price fields. The current price
// must be positive; the original only matters when it is higher.
func topLevelPrices(p product) (normalize.Pair, bool) {
	if !p.Price.Flat.Positive() {
		return normalize.Pair{}, false
	}
	current := p.Price.Flat.Value
	if p.OriginalPrice.Positive() && p.OriginalPrice.Value.GreaterThan(current) {
		return normalize.Pair{List: p.OriginalPrice.Value, Sale: current}, true
	}
	return normalize.Pair{List: current}, true
}

// cardActions applies the first ozon_card marketing action to the card price.
func cardActions(p product, d *normalize.Draft) {
	if d.Discount == nil {
		return
	}
	for _, a := range p.MarketingActions {
		if a.Type != "ozon_card" || !a.DiscountPercent.Positive() {
			continue
		}
		d.Card = normalize.ApplyPercentOff(*d.Discount, a.DiscountPercent.Value)
		d.CardDiscount = true
		d.CardPayment = true
		return
	}
}

// cardPromos applies every ozon_card promo in order; the last one wins.
func cardPromos(p product, d *normalize.Draft) {
	if d.Discount == nil {
		return
	}
	for _, pr := range p.Promos {
		if !strings.Contains(strings.ToLower(pr.Name), "ozon_card") || !pr.DiscountValue.Positive() {
			continue
		}
		d.Card = normalize.ApplyPercentOff(*d.Discount, pr.DiscountValue.Value)
		d.CardDiscount = true
		d.CardPayment = true
	}
}

var inStockStatuses = map[string]bool{
	"available":          true,
	"in_stock":           true,
	"ready_for_shipment": true,
}

var inventoryRules = normalize.InventoryRules[product]{
	Sources: []normalize.QuantitySource[product]{
		{Extract: func(p product) (int, bool) {
			qtys := make([]int, 0, len(p.Stocks))
			for _, s := range p.Stocks {
				qtys = append(qtys, s.Present.Int())
			}
			return normalize.Sum(qtys)
		}},
		{Extract: func(p product) (int, bool) {
			qtys := make([]int, 0, len(p.Warehouses))
			for _, w := range p.Warehouses {
				qtys = append(qtys, w.Quantity.Int())
			}
			return normalize.Sum(qtys)
		}},
		{Extract: func(p product) (int, bool) {
			if p.Available == nil || !*p.Available {
				return 0, false
			}
			return 1, true
		}},
		{Extract: func(p product) (int, bool) {
			if !inStockStatuses[strings.ToLower(p.Status)] {
				return 0, false
			}
			return 1, true
		}},
		{Extract: func(p product) (int, bool) {
			return p.MaxOrderQuantity.Int(), p.MaxOrderQuantity.Positive()
		}, Raise: true},
		{Extract: func(p product) (int, bool) {
			if p.Buybox == nil {
				return 0, false
			}
			return p.Buybox.Stock.Int(), p.Buybox.Stock.Positive()
		}},
	},
}

func decodeProduct(hit models.SearchHit) (product, error) {
	var p product
	if err := normalize.Decode(hit.Payload, &p); err != nil {
		return product{}, fmt.Errorf("decode ozon product %s: %w", hit.ProductID, err)
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
		return models.PriceInfo{}, fmt.Errorf("ozon product %s: %w", hit.ProductID, err)
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
