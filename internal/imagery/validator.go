package imagery

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lukman83/kidkazz-catalog/internal/cache"
	"github.com/lukman83/kidkazz-catalog/internal/httputil"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
)

// ValidatorOptions tunes probing. Zero values take the defaults.
type ValidatorOptions struct {
	ProbeTimeout  time.Duration // per HEAD request, default 2s
	BatchSize     int           // size of each parallel tier, default 30
	MaxConcurrent int           // probes in flight across all products, default 30
	CacheTTL      time.Duration // default 2h
	Logger        *slog.Logger
}

// Validator probes candidate URLs with HEAD requests in tiers: one parallel
// batch, a second parallel batch, then the remainder one at a time.
type Validator struct {
	client *http.Client
	cache  *cache.Cache
	sem    *semaphore.Weighted
	opts   ValidatorOptions
	logger *slog.Logger
}

func NewValidator(client *http.Client, c *cache.Cache, opts ValidatorOptions) *Validator {
	if client == nil {
		client = httputil.NewCDNClient(0)
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 30
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 30
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Hour
	}
	return &Validator{
		client: client,
		cache:  c,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "validator"),
	}
}

func validationKey(platform, productID string) string {
	return "validation:" + platform + ":" + productID
}

// Validate returns the valid candidates in rank order. An empty result is
// cached like any other; a result cut short by cancellation is not.
func (v *Validator) Validate(ctx context.Context, platformName, productID string, candidates []models.CandidateImageURL) ([]models.ValidationResult, error) {
	return cache.GetOrLoad(ctx, v.cache, validationKey(platformName, productID), v.opts.CacheTTL,
		func(ctx context.Context) ([]models.ValidationResult, error) {
			results := v.validate(ctx, candidates)
			if len(results) == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			v.logger.Debug("validation finished",
				logging.String(logging.FieldPlatform, platformName),
				logging.String(logging.FieldProductID, productID),
				logging.Int("candidates", len(candidates)),
				logging.Int("valid", len(results)),
			)
			return results, nil
		})
}

func (v *Validator) validate(ctx context.Context, candidates []models.CandidateImageURL) []models.ValidationResult {
	first := candidates[:min(v.opts.BatchSize, len(candidates))]
	if results := v.probeParallel(ctx, first); len(results) > 0 {
		return results
	}
	rest := candidates[len(first):]
	second := rest[:min(v.opts.BatchSize, len(rest))]
	if results := v.probeParallel(ctx, second); len(results) > 0 {
		return results
	}
	for _, c := range rest[len(second):] {
		if ctx.Err() != nil {
			return nil
		}
		if r, ok := v.probe(ctx, c); ok {
			return []models.ValidationResult{r}
		}
	}
	return nil
}

func (v *Validator) probeParallel(ctx context.Context, batch []models.CandidateImageURL) []models.ValidationResult {
	if len(batch) == 0 {
		return nil
	}
	found := make([]*models.ValidationResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.BatchSize)
	for i, c := range batch {
		g.Go(func() error {
			if r, ok := v.probe(gctx, c); ok {
				found[i] = &r
			}
			return nil
		})
	}
	_ = g.Wait()

	var results []models.ValidationResult
	for _, r := range found {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// probe reports whether c answers HEAD with 200 and an image content type.
func (v *Validator) probe(ctx context.Context, c models.CandidateImageURL) (models.ValidationResult, bool) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return models.ValidationResult{}, false
	}
	defer v.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, v.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL, nil)
	if err != nil {
		return models.ValidationResult{}, false
	}
	for k, vals := range httputil.ImageHeaders() {
		req.Header[k] = vals
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return models.ValidationResult{}, false
	}
	resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return models.ValidationResult{}, false
	}
	// Keep the URL the CDN redirected to.
	final := c.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return models.ValidationResult{URL: final, ContentType: contentType, SizeClass: c.SizeClass}, true
}
