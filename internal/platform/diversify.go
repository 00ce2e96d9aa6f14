package platform

import "github.com/lukman83/kidkazz-catalog/internal/models"

// Diversify picks up to limit hits round-robin across rating bands
// (>=4.5, 4.0-4.5, <4.0) and price terciles, then tops up in the original
// order. priceOf reports the comparable price of hits[i], if any.
func Diversify(hits []models.SearchHit, limit int, priceOf func(i int) (float64, bool)) []models.SearchHit {
	if len(hits) <= limit {
		return hits
	}

	var high, mid, low []int
	for i, h := range hits {
		switch {
		case h.Rating >= 4.5:
			high = append(high, i)
		case h.Rating >= 4.0:
			mid = append(mid, i)
		default:
			low = append(low, i)
		}
	}
	groups := [][]int{high, mid, low}
	if priceOf != nil {
		if cheap, medium, expensive, ok := priceTerciles(len(hits), priceOf); ok {
			groups = append(groups, cheap, medium, expensive)
		}
	}

	picked := make(map[int]bool, limit)
	out := make([]models.SearchHit, 0, limit)
	take := func(i int) bool {
		if picked[i] || len(out) >= limit {
			return false
		}
		picked[i] = true
		out = append(out, hits[i])
		return true
	}

	for len(out) < limit {
		progressed := false
		for g := range groups {
			for len(groups[g]) > 0 {
				i := groups[g][0]
				groups[g] = groups[g][1:]
				if take(i) {
					progressed = true
					break
				}
			}
		}
		if !progressed {
			break
		}
	}
	for i := range hits {
		take(i)
	}
	return out
}

func priceTerciles(n int, priceOf func(i int) (float64, bool)) (cheap, medium, expensive []int, ok bool) {
	var lo, hi float64
	first := true
	for i := 0; i < n; i++ {
		p, has := priceOf(i)
		if !has {
			continue
		}
		if first || p < lo {
			lo = p
		}
		if first || p > hi {
			hi = p
		}
		first = false
	}
	if first {
		return nil, nil, nil, false
	}
	step := (hi - lo) / 3
	for i := 0; i < n; i++ {
		p, has := priceOf(i)
		if !has {
			continue
		}
		switch v := p - lo; {
		case v < step:
			cheap = append(cheap, i)
		case v < 2*step:
			medium = append(medium, i)
		default:
			expensive = append(expensive, i)
		}
	}
	return cheap, medium, expensive, true
}
