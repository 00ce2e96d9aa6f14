package wildberries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lukman83/kidkazz-catalog/internal/httputil"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

const origin = "https://www.wildberries.ru"

// Search queries the public catalog search. When more products come back
// than requested, the result is diversified across rating and price bands.
func (c *Client) Search(ctx context.Context, query string, opts platform.SearchOpts) ([]models.SearchHit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	apiLimit := min(opts.Limit*2, maxAPILimit)

	params := url.Values{}
	params.Set("query", query)
	params.Set("resultset", "catalog")
	params.Set("limit", strconv.Itoa(apiLimit))
	params.Set("sort", "popular")
	params.Set("dest", defaultDest)
	params.Set("regions", defaultRegions)
	params.Set("spp", "30")
	params.Set("curr", "rub")
	params.Set("lang", "ru")
	params.Set("locale", "ru")
	params.Set("appType", "1")

	var list productList
	endpoint := c.searchURL + "?" + params.Encode()
	if err := httputil.FetchJSON(ctx, c.client, endpoint, httputil.JSONHeaders(origin), c.maxRetries, &list); err != nil {
		return nil, fmt.Errorf("wildberries search %q: %w", query, err)
	}

	platform.ReportProgressf(ctx, "Wildberries returned %d products", len(list.items()))

	var hits []models.SearchHit
	var prices []int64
	for _, raw := range list.items() {
		var p product
		if err := normalize.Decode(raw, &p); err != nil || p.ID == 0 {
			c.logger.Debug("skipping malformed search product", logging.Error(err))
			continue
		}
		price, _ := p.effectivePrice()
		hits = append(hits, toHit(p, raw))
		prices = append(prices, price)
	}

	hits = platform.Diversify(hits, opts.Limit, func(i int) (float64, bool) {
		return float64(prices[i]), prices[i] > 0
	})
	return hits, nil
}

// Detail fetches one product from the card API.
func (c *Client) Detail(ctx context.Context, productID string) (models.SearchHit, error) {
	if _, err := parseID(productID); err != nil {
		return models.SearchHit{}, err
	}
	p, raw, err := c.fetchCard(ctx, productID)
	if err != nil {
		return models.SearchHit{}, err
	}
	return toHit(p, raw), nil
}

func (c *Client) fetchCard(ctx context.Context, productID string) (product, json.RawMessage, error) {
	params := url.Values{}
	params.Set("nm", productID)
	params.Set("appType", "1")
	params.Set("curr", "rub")
	params.Set("dest", defaultDest)

	var list productList
	endpoint := c.cardURL + "?" + params.Encode()
	if err := httputil.FetchJSON(ctx, c.client, endpoint, httputil.JSONHeaders(origin), c.maxRetries, &list); err != nil {
		return product{}, nil, fmt.Errorf("wildberries card %s: %w", productID, err)
	}
	items := list.items()
	if len(items) == 0 {
		return product{}, nil, fmt.Errorf("wildberries card %s: %w", productID, platform.ErrProductNotFound)
	}
	var p product
	if err := normalize.Decode(items[0], &p); err != nil {
		return product{}, nil, fmt.Errorf("decode wildberries card %s: %w", productID, err)
	}
	return p, items[0], nil
}

func toHit(p product, raw json.RawMessage) models.SearchHit {
	return models.SearchHit{
		ProductID:    strconv.FormatInt(p.ID, 10),
		Platform:     Name,
		Name:         p.Name,
		Rating:       p.rating(),
		ReviewsCount: p.Feedbacks.Int(),
		Payload:      raw,
	}
}
