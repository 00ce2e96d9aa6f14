package pipeline

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

// Selection strategies accepted by SearchAndSave.
const (
	StrategyDefault         = "default"
	StrategyPopularMidrange = "popular_midrange"
)

// candidate is a normalized hit waiting for image resolution.
type candidate struct {
	hit       models.SearchHit
	price     models.PriceInfo
	inventory models.Inventory
}

// selector decides how many hits to fetch and which of them to keep.
type selector interface {
	fetchLimit(limit int) int
	selectFrom(items []candidate, limit int) []candidate
}

func selectorFor(name string) (selector, error) {
	switch name {
	case "", StrategyDefault:
		return defaultSelector{}, nil
	case StrategyPopularMidrange:
		return popularMidrange{
			minPrice:   decimal.NewFromInt(500),
			maxPrice:   decimal.NewFromInt(100000),
			minRating:  3.8,
			minReviews: 5,
		}, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", name)
	}
}

type defaultSelector struct{}

func (defaultSelector) fetchLimit(limit int) int { return limit }

func (defaultSelector) selectFrom(items []candidate, limit int) []candidate {
	return uniqueByID(items, limit)
}

// popularMidrange over-fetches, keeps well reviewed mid-priced products and
// orders them by rating weighted with review count.
type popularMidrange struct {
	minPrice, maxPrice decimal.Decimal
	minRating          float64
	minReviews         int
}

func (popularMidrange) fetchLimit(limit int) int { return limit * 3 }

func (s popularMidrange) selectFrom(items []candidate, limit int) []candidate {
	var kept []candidate
	for _, c := range items {
		price := c.price.Price
		if price.LessThan(s.minPrice) || price.GreaterThan(s.maxPrice) {
			continue
		}
		if c.hit.Rating < s.minRating || c.hit.ReviewsCount < s.minReviews {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return popularity(kept[i].hit) > popularity(kept[j].hit)
	})
	return uniqueByID(kept, limit)
}

func popularity(h models.SearchHit) float64 {
	return h.Rating * float64(h.ReviewsCount)
}

func uniqueByID(items []candidate, limit int) []candidate {
	seen := make(map[string]bool, len(items))
	out := make([]candidate, 0, min(len(items), max(limit, 0)))
	for _, c := range items {
		if len(out) >= limit {
			break
		}
		if seen[c.hit.ProductID] {
			continue
		}
		seen[c.hit.ProductID] = true
		out = append(out, c)
	}
	return out
}
