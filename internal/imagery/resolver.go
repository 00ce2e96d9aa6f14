package imagery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lukman83/kidkazz-catalog/internal/instrument"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

// Stage is a state of the resolution state machine.
type Stage string

const (
	StageGenerating     Stage = "GENERATING"
	StageValidating     Stage = "VALIDATING"
	StageDownloading    Stage = "DOWNLOADING"
	StageDone           Stage = "DONE"
	StageAPIFallback    Stage = "API_FALLBACK"
	StageDirectFallback Stage = "DIRECT_FALLBACK"
	StagePlaceholder    Stage = "PLACEHOLDER"
)

// Source is what the resolver needs from a marketplace.
type Source interface {
	platform.ImageTemplates
	platform.HintSource
}

// Outcome is the result of one resolution. URL is never empty.
type Outcome struct {
	URL          string                  `json:"url"`
	Source       models.ImageSource      `json:"source"`
	Image        *models.DownloadedImage `json:"image,omitempty"`
	Attempts     int                     `json:"attempts"`
	ResolutionID string                  `json:"resolution_id"`
	Trace        []Stage                 `json:"trace"`
}

// ResolverOptions tunes the fallback chain. Zero values take the defaults.
type ResolverOptions struct {
	Budget          time.Duration // per product, default 15s
	MaxRetries      int           // extra primary attempts, default 2; negative disables retries
	RetryBackoff    time.Duration // multiplied by the attempt number, default 1s
	FallbackTimeout time.Duration // API fallback once the budget is spent, default 3s
	Logger          *slog.Logger
	Instrumenter    *instrument.Instrumenter
}

// Resolver runs candidate generation, validation and download, and falls
// back to API hints, the direct URL and finally the placeholder.
type Resolver struct {
	generator *Generator
	hints     *Hints
	validator *Validator
	acquirer  *Acquirer
	inst      *instrument.Instrumenter
	opts      ResolverOptions
	logger    *slog.Logger
}

func NewResolver(g *Generator, h *Hints, v *Validator, a *Acquirer, opts ResolverOptions) *Resolver {
	if opts.Budget <= 0 {
		opts.Budget = 15 * time.Second
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = 2
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = 3 * time.Second
	}
	return &Resolver{
		generator: g,
		hints:     h,
		validator: v,
		acquirer:  a,
		inst:      opts.Instrumenter,
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "resolver"),
	}
}

type resolution struct {
	src       Source
	productID string
	outcome   Outcome
	hints     []string
	hintsDone bool
	logger    *slog.Logger
}

func (r *resolution) enter(s Stage) {
	r.outcome.Trace = append(r.outcome.Trace, s)
	r.logger.Debug("stage", logging.String(logging.FieldStage, string(s)))
}

// Resolve always returns an Outcome with a URL. Caller cancellation only
// shortens the path to the pure tiers.
func (r *Resolver) Resolve(ctx context.Context, src Source, productID string) Outcome {
	id := uuid.NewString()
	res := &resolution{
		src:       src,
		productID: productID,
		outcome:   Outcome{ResolutionID: id},
		logger: r.logger.With(
			logging.String(logging.FieldResolutionID, id),
			logging.String(logging.FieldPlatform, src.Name()),
			logging.String(logging.FieldProductID, productID),
		),
	}

	budgetCtx, cancel := context.WithTimeout(ctx, r.opts.Budget)
	defer cancel()

	err := r.primaryWithRetry(budgetCtx, res)
	if err == nil {
		return r.finish(res, models.SourceValidated)
	}
	res.logger.Info("primary resolution failed", logging.Int("attempts", res.outcome.Attempts), logging.Error(err))

	res.enter(StageAPIFallback)
	if u, ok := r.apiFallback(ctx, budgetCtx, res); ok {
		res.outcome.URL = u
		return r.finish(res, models.SourceAPIHint)
	}

	res.enter(StageDirectFallback)
	if u, ok := src.DirectImageURL(productID); ok {
		res.outcome.URL = u
		return r.finish(res, models.SourceDirect)
	}

	res.enter(StagePlaceholder)
	res.outcome.URL = models.PlaceholderImageURL
	return r.finish(res, models.SourcePlaceholder)
}

func (r *Resolver) finish(res *resolution, source models.ImageSource) Outcome {
	res.outcome.Source = source
	r.inst.RecordTier(res.src.Name(), string(source))
	res.logger.Debug("resolved image", logging.String("source", string(source)), logging.String("url", res.outcome.URL))
	return res.outcome
}

// primaryWithRetry repeats the primary sequence while it fails transiently
// and the budget allows.
func (r *Resolver) primaryWithRetry(ctx context.Context, res *resolution) error {
	var err error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, time.Duration(attempt)*r.opts.RetryBackoff); serr != nil {
				return err
			}
		}
		res.outcome.Attempts++
		err = r.primary(ctx, res)
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (r *Resolver) primary(ctx context.Context, res *resolution) error {
	name := res.src.Name()

	res.enter(StageGenerating)
	hints := r.lookupHints(ctx, res)
	candidates, err := instrument.RunValue(ctx, r.inst, instrument.StageGenerate, name, func(ctx context.Context) ([]models.CandidateImageURL, error) {
		return r.generator.Generate(ctx, res.src, res.productID, hints)
	})
	if err != nil {
		return fmt.Errorf("generate candidates: %w", err)
	}
	if len(candidates) == 0 {
		return ErrNoImage
	}

	res.enter(StageValidating)
	valid, err := instrument.RunValue(ctx, r.inst, instrument.StageValidate, name, func(ctx context.Context) ([]models.ValidationResult, error) {
		return r.validator.Validate(ctx, name, res.productID, candidates)
	})
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if len(valid) == 0 {
		return fmt.Errorf("validate: %w", ErrNoImage)
	}

	res.enter(StageDownloading)
	img, err := instrument.RunValue(ctx, r.inst, instrument.StageDownload, name, func(ctx context.Context) (models.DownloadedImage, error) {
		return r.acquirer.Acquire(ctx, name, res.productID, valid)
	})
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	res.enter(StageDone)
	res.outcome.URL = img.URL
	res.outcome.Image = &img
	return nil
}

func (r *Resolver) lookupHints(ctx context.Context, res *resolution) []string {
	if res.hintsDone || r.hints == nil {
		return res.hints
	}
	hints, _ := instrument.RunValue(ctx, r.inst, instrument.StageHints, res.src.Name(), func(ctx context.Context) ([]string, error) {
		return r.hints.Lookup(ctx, res.src, res.productID), nil
	})
	if ctx.Err() == nil {
		res.hints, res.hintsDone = hints, true
	}
	return hints
}

// apiFallback uses the first hint URL. Once the budget is spent the lookup
// gets a short deadline of its own, still bound to the caller's context.
func (r *Resolver) apiFallback(parent, budgetCtx context.Context, res *resolution) (string, bool) {
	ctx := budgetCtx
	if budgetCtx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.opts.FallbackTimeout)
		defer cancel()
	}
	hints, err := instrument.RunValue(ctx, r.inst, instrument.StageAPIFallback, res.src.Name(), func(ctx context.Context) ([]string, error) {
		hints := r.lookupHints(ctx, res)
		if len(hints) == 0 {
			return nil, errNoHints
		}
		return hints, nil
	})
	if err != nil {
		return "", false
	}
	return hints[0], true
}

var errNoHints = errors.New("no image hints")
