package platform

import (
	"context"
	"encoding/json"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

type RequestType int

const (
	SearchRequest RequestType = iota
	ProductDetailRequest
)

type Request struct {
	Type      RequestType
	Query     string
	ProductID string
	Limit     int
}

type Result struct {
	Hits     []models.SearchHit
	Strategy string
	Raw      json.RawMessage
}

type SearchOpts struct {
	Limit int
}

// Strategy is one way of fetching search or detail data from a marketplace.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Searcher fetches raw hits from a marketplace.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOpts) ([]models.SearchHit, error)
	Detail(ctx context.Context, productID string) (models.SearchHit, error)
}

// Normalizer maps a raw hit onto canonical price and stock values.
// Both methods are pure.
type Normalizer interface {
	ExtractPrice(hit models.SearchHit) (models.PriceInfo, error)
	ExtractQuantity(hit models.SearchHit) models.Inventory
}

// ImageTemplates knows a marketplace's image CDN layout.
type ImageTemplates interface {
	Name() string
	// CandidateURLs returns the deterministic candidates for productID in
	// priority order. It fails only when productID cannot form a CDN path.
	CandidateURLs(productID string) ([]string, error)
	// DirectImageURL is the single highest-confidence guess, not validated.
	DirectImageURL(productID string) (string, bool)
	ProductURL(productID string) string
}

// HintSource looks up image URLs from auxiliary product APIs. It is
// best effort: callers treat any error as "no hints".
type HintSource interface {
	ImageHints(ctx context.Context, productID string) ([]string, error)
}

// Adapter is the full capability set of one marketplace.
type Adapter interface {
	Searcher
	Normalizer
	ImageTemplates
	HintSource
}
