// Package wildberries implements the Wildberries marketplace adapter.
package wildberries

import (
	"log/slog"
	"net/http"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

const (
	Name = "wildberries"

	defaultSearchURL = "https://search.wb.ru/exactmatch/ru/common/v5/search"
	defaultCardURL   = "https://card.wb.ru/cards/detail"
	defaultDest      = "-1257786"
	defaultRegions   = "80,64,38,4,115,83,33,68,70,69,30,86,75,40,1,66,48,110,31,22,71,114"
	maxAPILimit      = 300
)

// Options overrides the public endpoints, mainly for tests.
type Options struct {
	SearchURL  string
	CardURL    string
	MaxRetries int
	Logger     *slog.Logger
}

// Client implements platform.Adapter for Wildberries.
type Client struct {
	client     *http.Client
	searchURL  string
	cardURL    string
	maxRetries int
	logger     *slog.Logger
}

var _ platform.Adapter = (*Client)(nil)

func New(client *http.Client, opts Options) *Client {
	c := &Client{
		client:     client,
		searchURL:  opts.SearchURL,
		cardURL:    opts.CardURL,
		maxRetries: opts.MaxRetries,
		logger:     logging.NewComponentLogger(opts.Logger, "wildberries"),
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.searchURL == "" {
		c.searchURL = defaultSearchURL
	}
	if c.cardURL == "" {
		c.cardURL = defaultCardURL
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 2
	}
	return c
}

func (c *Client) Name() string { return Name }
