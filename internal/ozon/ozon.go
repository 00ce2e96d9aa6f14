// Package ozon implements the Ozon marketplace adapter. Search and detail
// data come from page widget states, fetched through a chain of strategies.
package ozon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

const (
	Name = "ozon"

	defaultBaseURL     = "https://www.ozon.ru"
	defaultFastTimeout = 10 * time.Second
)

// Options configures the adapter. BaseURL is overridden in tests.
type Options struct {
	BaseURL     string
	Headless    bool
	FastTimeout time.Duration
	MaxRetries  int
	Logger      *slog.Logger
}

// Client implements platform.Adapter for Ozon.
type Client struct {
	client         *http.Client
	baseURL        string
	fastStrategies []platform.Strategy // entrypoint API, static page; raced
	slowStrategies []platform.Strategy // headless browser; sequential fallback
	fastTimeout    time.Duration
	logger         *slog.Logger
}

var _ platform.Adapter = (*Client)(nil)

func New(client *http.Client, opts Options) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.FastTimeout <= 0 {
		opts.FastTimeout = defaultFastTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	logger := logging.NewComponentLogger(opts.Logger, "ozon")

	c := &Client{
		client:      client,
		baseURL:     opts.BaseURL,
		fastTimeout: opts.FastTimeout,
		logger:      logger,
		fastStrategies: []platform.Strategy{
			newEntrypointStrategy(client, opts.BaseURL, opts.MaxRetries, logger),
			newStaticPageStrategy(client, opts.BaseURL, opts.MaxRetries, logger),
		},
	}
	if opts.Headless {
		c.slowStrategies = append(c.slowStrategies, newHeadlessStrategy(opts.BaseURL, logger))
	}
	return c
}

func (c *Client) Name() string { return Name }

// Search runs the strategy chain for query and diversifies the hits when
// more come back than requested.
func (c *Client) Search(ctx context.Context, query string, opts platform.SearchOpts) ([]models.SearchHit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	result, err := c.executeWithFallback(ctx, platform.Request{
		Type:  platform.SearchRequest,
		Query: query,
		Limit: opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("ozon search %q: %w", query, err)
	}

	hits := result.Hits
	return platform.Diversify(hits, opts.Limit, func(i int) (float64, bool) {
		p, err := decodeProduct(hits[i])
		if err != nil {
			return 0, false
		}
		return p.currentPrice()
	}), nil
}

// Detail fetches one product page's widget states.
func (c *Client) Detail(ctx context.Context, productID string) (models.SearchHit, error) {
	id, err := parseID(productID)
	if err != nil {
		return models.SearchHit{}, err
	}
	result, err := c.executeWithFallback(ctx, platform.Request{
		Type:      platform.ProductDetailRequest,
		ProductID: id,
	})
	if err != nil {
		return models.SearchHit{}, fmt.Errorf("ozon detail %s: %w", id, err)
	}
	return result.Hits[0], nil
}

// executeWithFallback races the fast strategies, then tries the slow ones in
// order. A strategy only counts when it returns at least one hit.
func (c *Client) executeWithFallback(ctx context.Context, req platform.Request) (*platform.Result, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan *platform.Result, len(c.fastStrategies))
	doneCh := make(chan struct{}, len(c.fastStrategies))
	for _, s := range c.fastStrategies {
		go func(s platform.Strategy) {
			r, err := s.Execute(raceCtx, req)
			if err == nil && r != nil && len(r.Hits) > 0 {
				resultCh <- r
				return
			}
			if err != nil {
				c.logger.Debug("strategy failed", logging.String("strategy", s.Name()), logging.Error(err))
			}
			doneCh <- struct{}{}
		}(s)
	}

	timer := time.NewTimer(c.fastTimeout)
	defer timer.Stop()

	failed := 0
race:
	for {
		select {
		case r := <-resultCh:
			cancel()
			platform.ReportProgressf(ctx, "Found %d Ozon products via %s", len(r.Hits), r.Strategy)
			return r, nil
		case <-doneCh:
			failed++
			if failed == len(c.fastStrategies) {
				break race
			}
		case <-timer.C:
			platform.ReportProgress(ctx, "Ozon fast strategies timed out")
			break race
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cancel()

	for _, s := range c.slowStrategies {
		platform.ReportProgressf(ctx, "Trying %s strategy...", s.Name())
		r, err := s.Execute(ctx, req)
		if err == nil && r != nil && len(r.Hits) > 0 {
			platform.ReportProgressf(ctx, "Found %d Ozon products via %s", len(r.Hits), s.Name())
			return r, nil
		}
		if err != nil {
			c.logger.Warn("strategy failed", logging.String("strategy", s.Name()), logging.Error(err))
		}
	}

	if req.Type == platform.ProductDetailRequest {
		return nil, platform.ErrProductNotFound
	}
	return nil, fmt.Errorf("all strategies exhausted")
}

// hitsFromStates turns widget states into hits. Items without an id are
// skipped and logged.
func hitsFromStates(states widgetStates, req platform.Request, logger *slog.Logger) []models.SearchHit {
	if req.Type == platform.ProductDetailRequest {
		raw, ok := states.detailPayload(req.ProductID)
		if !ok {
			return nil
		}
		return hitsFromItems([]json.RawMessage{raw}, logger)
	}
	return hitsFromItems(states.searchItems(), logger)
}

func hitsFromItems(items []json.RawMessage, logger *slog.Logger) []models.SearchHit {
	hits := make([]models.SearchHit, 0, len(items))
	for _, raw := range items {
		var p product
		if err := normalize.Decode(raw, &p); err != nil {
			logger.Debug("skipping malformed search product", logging.Error(err))
			continue
		}
		id, ok := p.productID()
		if !ok {
			logger.Debug("skipping search product without id")
			continue
		}
		hits = append(hits, toHit(p, id, raw))
	}
	return hits
}
