// Package instrument times pipeline stages and exports the results as
// Prometheus metrics.
package instrument

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
)

// Stage names used across the pipeline.
const (
	StageSearch      = "search"
	StageNormalize   = "normalize"
	StageGenerate    = "generate"
	StageHints       = "hints"
	StageValidate    = "validate"
	StageDownload    = "download"
	StageAPIFallback = "api_fallback"
	StageResolve     = "resolve"
	StageSave        = "save"
)

// Instrumenter owns the stage collectors. A nil *Instrumenter is valid and
// records nothing.
type Instrumenter struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	tiers    *prometheus.CounterVec
	logger   *slog.Logger
}

// New creates collectors and registers them on reg. A nil reg gets a fresh
// private registry.
func New(reg *prometheus.Registry, logger *slog.Logger) *Instrumenter {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	inst := &Instrumenter{
		registry: reg,
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kidkazz_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"stage", "platform", "outcome"},
		),
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidkazz_stage_total",
				Help: "Total number of pipeline stage runs.",
			},
			[]string{"stage", "platform", "outcome"},
		),
		tiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kidkazz_image_tier_total",
				Help: "Image resolutions by the tier that produced the URL.",
			},
			[]string{"platform", "tier"},
		),
		logger: logging.NewComponentLogger(logger, "instrument"),
	}
	reg.MustRegister(inst.duration, inst.total, inst.tiers)
	return inst
}

// Handler serves the registry in the Prometheus exposition format.
func (i *Instrumenter) Handler() http.Handler {
	if i == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (i *Instrumenter) Registry() *prometheus.Registry {
	if i == nil {
		return nil
	}
	return i.registry
}

// RecordTier counts one resolution finished by tier.
func (i *Instrumenter) RecordTier(platform, tier string) {
	if i == nil {
		return
	}
	i.tiers.WithLabelValues(platform, tier).Inc()
}

// Run executes fn as stage for platform, recording its duration and outcome.
func Run(ctx context.Context, inst *Instrumenter, stage, platform string, fn func(context.Context) error) error {
	_, err := RunValue(ctx, inst, stage, platform, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RunValue is Run for stages that produce a value.
func RunValue[T any](ctx context.Context, inst *Instrumenter, stage, platform string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	if inst == nil {
		return v, err
	}
	elapsed := time.Since(start)
	outcome := Outcome(err)
	inst.duration.WithLabelValues(stage, platform, outcome).Observe(elapsed.Seconds())
	inst.total.WithLabelValues(stage, platform, outcome).Inc()
	inst.logger.Debug("stage finished",
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldPlatform, platform),
		logging.String("outcome", outcome),
		logging.Duration("duration", elapsed),
	)
	return v, err
}

// Outcome classifies err as a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
