package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

// PriceStats summarizes list prices and discounts of a record set.
type PriceStats struct {
	Count              int             `json:"count"`
	Average            decimal.Decimal `json:"average_price"`
	Min                decimal.Decimal `json:"min_price"`
	Max                decimal.Decimal `json:"max_price"`
	AverageDiscountPct float64         `json:"average_discount"`
	DiscountedCount    int             `json:"discount_products_count"`
}

// RatingBucket counts records whose rating falls in Label.
type RatingBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Stats struct {
	Prices  PriceStats     `json:"prices"`
	Ratings []RatingBucket `json:"ratings"`
}

var hundred = decimal.NewFromInt(100)

var ratingLabels = []string{"5", "4-5", "3-4", "2-3", "1-2"}

// ComputeStats returns price statistics over records with a positive price
// and the rating distribution over rated records.
func ComputeStats(records []models.ProductRecord) Stats {
	var ps PriceStats
	sum := decimal.Zero
	discountSum := decimal.Zero
	for _, r := range records {
		if !r.Price.IsPositive() {
			continue
		}
		if ps.Count == 0 || r.Price.LessThan(ps.Min) {
			ps.Min = r.Price
		}
		if ps.Count == 0 || r.Price.GreaterThan(ps.Max) {
			ps.Max = r.Price
		}
		ps.Count++
		sum = sum.Add(r.Price)
		if r.HasDiscount() {
			ps.DiscountedCount++
			discountSum = discountSum.Add(r.Price.Sub(*r.DiscountPrice).Div(r.Price).Mul(hundred))
		}
	}
	if ps.Count > 0 {
		ps.Average = sum.Div(decimal.NewFromInt(int64(ps.Count))).Round(2)
	}
	if ps.DiscountedCount > 0 {
		ps.AverageDiscountPct = discountSum.Div(decimal.NewFromInt(int64(ps.DiscountedCount))).Round(1).InexactFloat64()
	}

	counts := make(map[string]int, len(ratingLabels))
	for _, r := range records {
		if r.Rating <= 0 {
			continue
		}
		counts[ratingBucket(r.Rating)]++
	}
	buckets := make([]RatingBucket, len(ratingLabels))
	for i, l := range ratingLabels {
		buckets[i] = RatingBucket{Label: l, Count: counts[l]}
	}
	return Stats{Prices: ps, Ratings: buckets}
}

func ratingBucket(rating float64) string {
	switch {
	case rating >= 5:
		return "5"
	case rating >= 4:
		return "4-5"
	case rating >= 3:
		return "3-4"
	case rating >= 2:
		return "2-3"
	default:
		return "1-2"
	}
}
