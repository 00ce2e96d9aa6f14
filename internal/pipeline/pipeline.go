// Package pipeline is the consumer boundary of the catalog: it turns
// marketplace hits into saved product records with a resolved image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lukman83/kidkazz-catalog/internal/imagery"
	"github.com/lukman83/kidkazz-catalog/internal/instrument"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
	"github.com/lukman83/kidkazz-catalog/internal/store"
)

// Options tunes a Pipeline. Zero values take the defaults.
type Options struct {
	MaxConcurrent int // products resolved at once, default 5
	Logger        *slog.Logger
	Instrumenter  *instrument.Instrumenter
}

type Pipeline struct {
	registry      *platform.Registry
	resolver      *imagery.Resolver
	store         store.Store
	inst          *instrument.Instrumenter
	maxConcurrent int
	logger        *slog.Logger
}

func New(registry *platform.Registry, resolver *imagery.Resolver, st store.Store, opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	return &Pipeline{
		registry:      registry,
		resolver:      resolver,
		store:         st,
		inst:          opts.Instrumenter,
		maxConcurrent: opts.MaxConcurrent,
		logger:        logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
}

// Resolve normalizes hit and resolves its image. The only error is an
// unknown platform or a wrapped normalize.ErrUnnormalizable; image failures
// end in the placeholder instead.
func (p *Pipeline) Resolve(ctx context.Context, productID, platformName string, hit models.SearchHit) (models.ProductRecord, error) {
	adapter, err := p.registry.Get(platformName)
	if err != nil {
		return models.ProductRecord{}, err
	}
	hit.ProductID, hit.Platform = productID, adapter.Name()
	c, err := p.normalize(ctx, adapter, hit)
	if err != nil {
		return models.ProductRecord{}, err
	}
	return p.resolve(ctx, adapter, c, ""), nil
}

func (p *Pipeline) normalize(ctx context.Context, adapter platform.Adapter, hit models.SearchHit) (candidate, error) {
	return instrument.RunValue(ctx, p.inst, instrument.StageNormalize, adapter.Name(), func(context.Context) (candidate, error) {
		price, err := adapter.ExtractPrice(hit)
		if err != nil {
			return candidate{}, err
		}
		return candidate{hit: hit, price: price, inventory: adapter.ExtractQuantity(hit)}, nil
	})
}

func (p *Pipeline) resolve(ctx context.Context, adapter platform.Adapter, c candidate, query string) models.ProductRecord {
	outcome, _ := instrument.RunValue(ctx, p.inst, instrument.StageResolve, adapter.Name(), func(ctx context.Context) (imagery.Outcome, error) {
		return p.resolver.Resolve(ctx, adapter, c.hit.ProductID), nil
	})
	return models.ProductRecord{
		ProductID:       c.hit.ProductID,
		Platform:        adapter.Name(),
		Name:            c.hit.Name,
		Price:           c.price.Price,
		DiscountPrice:   c.price.DiscountPrice,
		CardPrice:       c.price.CardPrice,
		HasCardDiscount: c.price.HasCardDiscount,
		Rating:          clampRating(c.hit.Rating),
		ReviewsCount:    max(c.hit.ReviewsCount, 0),
		Quantity:        max(c.inventory.Quantity, 0),
		IsAvailable:     c.inventory.IsAvailable,
		ImageURL:        outcome.URL,
		ImageSource:     outcome.Source,
		ProductURL:      adapter.ProductURL(c.hit.ProductID),
		SearchQuery:     query,
	}
}

func clampRating(r float64) float64 {
	return min(max(r, 0), 5)
}

// Query describes one search run.
type Query struct {
	Text     string
	Platform string
	Limit    int
	Strategy string
}

// Batch is the outcome of SearchAndSave. Records keep search order.
type Batch struct {
	Query   Query                  `json:"query"`
	Records []models.ProductRecord `json:"records"`
	Found   int                    `json:"found"`
	Skipped int                    `json:"skipped"`
	Failed  int                    `json:"failed"`
}

// SearchAndSave searches, normalizes, resolves images concurrently and
// upserts every record. Malformed products are skipped and counted; a save
// failure is logged and counted without stopping the batch.
func (p *Pipeline) SearchAndSave(ctx context.Context, q Query) (Batch, error) {
	adapter, err := p.registry.Get(q.Platform)
	if err != nil {
		return Batch{}, err
	}
	sel, err := selectorFor(q.Strategy)
	if err != nil {
		return Batch{}, err
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	batch := Batch{Query: q}

	platform.ReportProgressf(ctx, "Searching %s for %q...", adapter.Name(), q.Text)
	hits, err := instrument.RunValue(ctx, p.inst, instrument.StageSearch, adapter.Name(), func(ctx context.Context) ([]models.SearchHit, error) {
		return adapter.Search(ctx, q.Text, platform.SearchOpts{Limit: sel.fetchLimit(q.Limit)})
	})
	if err != nil {
		return batch, fmt.Errorf("search %s: %w", adapter.Name(), err)
	}
	batch.Found = len(hits)

	var items []candidate
	for _, h := range hits {
		c, err := p.normalize(ctx, adapter, h)
		if err != nil {
			batch.Skipped++
			p.logger.Warn("skipping product",
				logging.String(logging.FieldPlatform, adapter.Name()),
				logging.String(logging.FieldProductID, h.ProductID),
				logging.Error(err),
			)
			continue
		}
		items = append(items, c)
	}
	items = sel.selectFrom(items, q.Limit)
	platform.ReportProgressf(ctx, "Resolving images for %d products...", len(items))

	records := make([]*models.ProductRecord, len(items))
	var (
		mu     sync.Mutex
		done   int
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i, c := range items {
		g.Go(func() error {
			rec := p.resolve(gctx, adapter, c, q.Text)
			saved, err := p.save(gctx, rec)
			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				failed++
				p.logger.Error("save failed", logging.String(logging.FieldProductID, rec.ProductID), logging.Error(err))
			} else {
				records[i] = &saved
			}
			platform.ReportProgressf(ctx, "Resolved %d/%d products", done, len(items))
			return nil
		})
	}
	_ = g.Wait()

	batch.Failed = failed
	for _, r := range records {
		if r != nil {
			batch.Records = append(batch.Records, *r)
		}
	}
	if err := ctx.Err(); err != nil {
		return batch, err
	}
	return batch, nil
}

func (p *Pipeline) save(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	if p.store == nil {
		return rec, nil
	}
	return instrument.RunValue(ctx, p.inst, instrument.StageSave, rec.Platform, func(ctx context.Context) (models.ProductRecord, error) {
		return p.store.Save(ctx, rec)
	})
}

// Refresh re-reads price and availability from the detail API and merges
// them into the stored record. The image is left as it is.
func (p *Pipeline) Refresh(ctx context.Context, productID, platformName string) (models.ProductRecord, error) {
	adapter, err := p.registry.Get(platformName)
	if err != nil {
		return models.ProductRecord{}, err
	}
	if p.store == nil {
		return models.ProductRecord{}, errors.New("refresh needs a store")
	}
	existing, err := p.store.FindByKey(ctx, models.ProductKey{ProductID: productID, Platform: adapter.Name()})
	if err != nil {
		return models.ProductRecord{}, err
	}

	hit, err := adapter.Detail(ctx, productID)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("fetch detail: %w", err)
	}
	c, err := p.normalize(ctx, adapter, hit)
	if err != nil {
		return models.ProductRecord{}, err
	}

	rec := existing
	rec.Price = c.price.Price
	rec.DiscountPrice = c.price.DiscountPrice
	rec.CardPrice = c.price.CardPrice
	rec.HasCardDiscount = c.price.HasCardDiscount
	rec.Quantity = max(c.inventory.Quantity, 0)
	rec.IsAvailable = c.inventory.IsAvailable
	if hit.Name != "" {
		rec.Name = hit.Name
	}
	if hit.Rating > 0 {
		rec.Rating = clampRating(hit.Rating)
	}
	if hit.ReviewsCount > 0 {
		rec.ReviewsCount = hit.ReviewsCount
	}
	return p.save(ctx, rec)
}

// Show returns the stored record for key.
func (p *Pipeline) Show(ctx context.Context, productID, platformName string) (models.ProductRecord, error) {
	if p.store == nil {
		return models.ProductRecord{}, store.ErrNotFound
	}
	return p.store.FindByKey(ctx, models.ProductKey{ProductID: productID, Platform: platform.CanonicalName(platformName)})
}

// Stats computes statistics over stored records matching f.
func (p *Pipeline) Stats(ctx context.Context, f store.Filter) (Stats, error) {
	if p.store == nil {
		return ComputeStats(nil), nil
	}
	f.Platform = platform.CanonicalName(f.Platform)
	records, err := p.store.List(ctx, f)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(records), nil
}

// ResolveImage runs image resolution alone for a product id.
func (p *Pipeline) ResolveImage(ctx context.Context, productID, platformName string) (imagery.Outcome, error) {
	adapter, err := p.registry.Get(platformName)
	if err != nil {
		return imagery.Outcome{}, err
	}
	return p.resolver.Resolve(ctx, adapter, productID), nil
}

// IsUnnormalizable reports whether err came from a product that could not
// be normalized.
func IsUnnormalizable(err error) bool {
	return errors.Is(err, normalize.ErrUnnormalizable)
}
