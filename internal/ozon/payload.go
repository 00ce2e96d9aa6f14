package ozon

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
)

// product is the subset of an Ozon item the catalog reads. Ozon serves
// several shapes for the same thing, so most fields are lenient.
type product struct {
	SKU       rawID            `json:"sku"`
	ID        rawID            `json:"id"`
	SkuID     rawID            `json:"skuId"`
	Action    *action          `json:"action"`
	Title     string           `json:"title"`
	Name      string           `json:"name"`
	Rating    normalize.Number `json:"rating"`
	Feedbacks normalize.Number `json:"feedbacks"`
	Reviews   normalize.Number `json:"reviews_count"`

	Price            priceField        `json:"price"`
	OriginalPrice    normalize.Number  `json:"originalPrice"`
	Prices           *pricesBlock      `json:"prices"`
	MarketingActions []marketingAction `json:"marketingActions"`
	Promos           []promo           `json:"promos"`

	Stocks           []struct{ Present normalize.Number } `json:"stocks"`
	Warehouses       []struct{ Quantity normalize.Number } `json:"warehouses"`
	Available        *bool                                  `json:"available"`
	Status           string                                 `json:"status"`
	MaxOrderQuantity normalize.Number                       `json:"maxOrderQuantity"`
	Buybox           *struct{ Stock normalize.Number }      `json:"buybox"`
}

type action struct {
	Link string `json:"link"`
}

// priceField is either a price block object or a flat amount.
type priceField struct {
	Block *priceBlock
	Flat  normalize.Number
}

type priceBlock struct {
	Price         normalize.Number `json:"price"`
	OriginalPrice normalize.Number `json:"originalPrice"`
}

func (f *priceField) UnmarshalJSON(b []byte) error {
	*f = priceField{}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var block priceBlock
		if err := json.Unmarshal(b, &block); err != nil {
			return nil
		}
		f.Block = &block
		return nil
	}
	return f.Flat.UnmarshalJSON(b)
}

type pricesBlock struct {
	Original   normalize.Number `json:"original"`
	Discounted normalize.Number `json:"discounted"`
}

type marketingAction struct {
	Type            string           `json:"type"`
	DiscountPercent normalize.Number `json:"discountPercent"`
}

type promo struct {
	Name          string           `json:"name"`
	DiscountValue normalize.Number `json:"discountValue"`
}

// rawID is a product id given as a number or a string.
type rawID string

func (r *rawID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*r = rawID(strings.TrimSpace(s))
		return nil
	}
	*r = rawID(b)
	return nil
}

var (
	trailingID = regexp.MustCompile(`-(\d+)/?$`)
	longDigits = regexp.MustCompile(`\d{6,}`)
)

// ExtractNumericID returns the numeric product id from a raw id, a slug such
// as "lego-city-60312-123456789" or a product link. ok is false when no id
// can be found.
func ExtractNumericID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "", false
	}
	if isDigits(s) {
		return s, true
	}
	if m := trailingID.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := longDigits.FindString(s); m != "" {
		return m, true
	}
	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (p product) productID() (string, bool) {
	for _, candidate := range []rawID{p.SKU, p.ID, p.SkuID} {
		if id, ok := ExtractNumericID(string(candidate)); ok {
			return id, true
		}
	}
	if p.Action != nil {
		return ExtractNumericID(p.Action.Link)
	}
	return "", false
}

func (p product) name() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}

func (p product) reviews() int {
	if p.Feedbacks.Positive() {
		return p.Feedbacks.Int()
	}
	return p.Reviews.Int()
}

// currentPrice is the shelf price used for diversification.
func (p product) currentPrice() (float64, bool) {
	switch {
	case p.Price.Block != nil && p.Price.Block.Price.Positive():
		return p.Price.Block.Price.Float(), true
	case p.Price.Flat.Positive():
		return p.Price.Flat.Float(), true
	case p.Prices != nil && p.Prices.Discounted.Positive():
		return p.Prices.Discounted.Float(), true
	}
	return 0, false
}

func toHit(p product, id string, raw json.RawMessage) models.SearchHit {
	return models.SearchHit{
		ProductID:    id,
		Platform:     Name,
		Name:         p.name(),
		Rating:       p.Rating.Float(),
		ReviewsCount: p.reviews(),
		Payload:      raw,
	}
}
