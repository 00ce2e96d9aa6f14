package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderImageURL marks a product for which no image could be resolved.
const PlaceholderImageURL = "https://via.placeholder.com/300x300?text=No+Image"

// IsPlaceholder reports whether url is the placeholder sentinel.
func IsPlaceholder(url string) bool { return url == PlaceholderImageURL }

// ImageSource names the resolution tier that produced a record's image URL.
type ImageSource string

const (
	SourceValidated   ImageSource = "validated"
	SourceAPIHint     ImageSource = "api_hint"
	SourceDirect      ImageSource = "direct"
	SourcePlaceholder ImageSource = "placeholder"
)

// ProductKey is the natural key of a ProductRecord.
type ProductKey struct {
	ProductID string `json:"product_id"`
	Platform  string `json:"platform"`
}

func (k ProductKey) String() string { return k.Platform + ":" + k.ProductID }

type ProductRecord struct {
	ProductID       string           `json:"product_id"`
	Platform        string           `json:"platform"`
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	DiscountPrice   *decimal.Decimal `json:"discount_price,omitempty"`
	CardPrice       *decimal.Decimal `json:"card_price,omitempty"`
	HasCardDiscount bool             `json:"has_card_discount"`
	Rating          float64          `json:"rating"`
	ReviewsCount    int              `json:"reviews_count"`
	Quantity        int              `json:"quantity"`
	IsAvailable     bool             `json:"is_available"`
	ImageURL        string           `json:"image_url"`
	ImageSource     ImageSource      `json:"image_source"`
	ProductURL      string           `json:"product_url"`
	SearchQuery     string           `json:"search_query,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (r ProductRecord) Key() ProductKey {
	return ProductKey{ProductID: r.ProductID, Platform: r.Platform}
}

// HasDiscount reports whether the record carries a discount below list price.
func (r ProductRecord) HasDiscount() bool {
	return r.DiscountPrice != nil && r.DiscountPrice.LessThan(r.Price)
}

// DiscountPercent returns the discount relative to list price, rounded to one decimal.
func (r ProductRecord) DiscountPercent() float64 {
	if !r.HasDiscount() || r.Price.IsZero() {
		return 0
	}
	pct := r.Price.Sub(*r.DiscountPrice).Div(r.Price).Mul(decimal.NewFromInt(100))
	f, _ := pct.Round(1).Float64()
	return f
}

// SearchHit is one raw product returned by a marketplace search or detail
// lookup. Payload keeps the untouched per-platform JSON for the normalizers.
type SearchHit struct {
	ProductID    string          `json:"product_id"`
	Platform     string          `json:"platform"`
	Name         string          `json:"name"`
	Rating       float64         `json:"rating"`
	ReviewsCount int             `json:"reviews_count"`
	Payload      json.RawMessage `json:"payload"`
}

// PriceInfo is the canonical price block produced by a price normalizer.
type PriceInfo struct {
	Price           decimal.Decimal  `json:"price"`
	DiscountPrice   *decimal.Decimal `json:"discount_price,omitempty"`
	CardPrice       *decimal.Decimal `json:"card_price,omitempty"`
	HasCardDiscount bool             `json:"has_card_discount"`
	HasCardPayment  bool             `json:"has_card_payment"`
}

// Inventory is the canonical availability block.
type Inventory struct {
	Quantity    int  `json:"quantity"`
	IsAvailable bool `json:"is_available"`
}

type CandidateImageURL struct {
	URL       string `json:"url"`
	Rank      int    `json:"rank"`
	SizeClass string `json:"size_class"`
}

type ValidationResult struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeClass   string `json:"size_class"`
}

type DownloadedImage struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeClass   string `json:"size_class"`
	Bytes       []byte `json:"-"`
}

// SizeClassFromURL guesses the image size class from well-known path segments.
func SizeClassFromURL(url string) string {
	switch {
	case strings.Contains(url, "c516x688"):
		return "516x688"
	case strings.Contains(url, "big"), strings.Contains(url, "original"):
		return "big"
	default:
		return "unknown"
	}
}
