package wildberries

import (
	"bytes"
	"encoding/json"

	"github.com/lukman83/kidkazz-catalog/internal/normalize"
)

// product mirrors the fields of a search or card API product that the
// catalog reads. All monetary fields are in kopecks.
type product struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Brand         string           `json:"brand"`
	Rating        normalize.Number `json:"rating"`
	ReviewRating  normalize.Number `json:"reviewRating"`
	Feedbacks     normalize.Number `json:"feedbacks"`
	PriceU        *int64           `json:"priceU"`
	SalePriceU    *int64           `json:"salePriceU"`
	ClientSale    normalize.Number `json:"clientSale"`
	TotalQuantity int              `json:"totalQuantity"`
	Quantity      int              `json:"quantity"`
	Sizes         []size           `json:"sizes"`
	Extended      *extended        `json:"extended"`
	Pics          pics             `json:"pics"`
}

type size struct {
	Price  *sizePrice `json:"price"`
	Stocks []stock    `json:"stocks"`
}

type sizePrice struct {
	Basic   int64 `json:"basic"`
	Product int64 `json:"product"`
}

type stock struct {
	Qty int `json:"qty"`
}

type extended struct {
	BasicPriceU *int64 `json:"basicPriceU"`
	BasicSale   int    `json:"basicSale"`
}

// pics is either a picture count or a list of picture ids.
type pics struct {
	Count int
	IDs   []int64
}

func (p *pics) UnmarshalJSON(b []byte) error {
	*p = pics{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' {
		return nil
	}
	if b[0] == '[' {
		var ids []int64
		if err := json.Unmarshal(b, &ids); err != nil {
			return nil
		}
		p.IDs = ids
		p.Count = len(ids)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err == nil && n > 0 {
		p.Count = n
	}
	return nil
}

func (p product) rating() float64 {
	if p.ReviewRating.Positive() {
		return p.ReviewRating.Float()
	}
	return p.Rating.Float()
}

// effectivePrice is the kopeck price used for search diversification.
func (p product) effectivePrice() (int64, bool) {
	if p.SalePriceU != nil && *p.SalePriceU > 0 {
		return *p.SalePriceU, true
	}
	if p.PriceU != nil && *p.PriceU > 0 {
		return *p.PriceU, true
	}
	for _, s := range p.Sizes {
		if s.Price != nil && s.Price.Product > 0 {
			return s.Price.Product, true
		}
	}
	return 0, false
}

// productList finds the product array under data.products or products.
type productList struct {
	Data *struct {
		Products []json.RawMessage `json:"products"`
	} `json:"data"`
	Products []json.RawMessage `json:"products"`
}

func (l productList) items() []json.RawMessage {
	if l.Data != nil && len(l.Data.Products) > 0 {
		return l.Data.Products
	}
	return l.Products
}
