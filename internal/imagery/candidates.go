// Package imagery resolves a working product image against marketplace
// CDNs: candidate generation, HEAD validation, download with decode
// verification, and the fallback chain that always yields a URL.
package imagery

import (
	"context"
	"time"

	"github.com/lukman83/kidkazz-catalog/internal/cache"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

const (
	DefaultMaxCandidates = 150
	DefaultMaxHints      = 2
	DefaultTemplateTTL   = 2 * time.Hour
)

// GeneratorOptions tunes candidate generation.
type GeneratorOptions struct {
	MaxCandidates int           // total cap, default 150
	MaxHints      int           // hint URLs appended; negative takes the default 2
	TemplateTTL   time.Duration // how long template URLs stay memoized, default 2h
}

// Generator builds ranked candidate URLs. The deterministic part is
// memoized per product in the shared cache.
type Generator struct {
	cache *cache.Cache
	opts  GeneratorOptions
}

func NewGenerator(c *cache.Cache, opts GeneratorOptions) *Generator {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.MaxHints < 0 {
		opts.MaxHints = DefaultMaxHints
	}
	if opts.TemplateTTL <= 0 {
		opts.TemplateTTL = DefaultTemplateTTL
	}
	return &Generator{cache: c, opts: opts}
}

// Generate returns the template candidates for productID followed by up to
// maxHints acceptable hint URLs, de-duplicated in order and capped.
func (g *Generator) Generate(ctx context.Context, tmpl platform.ImageTemplates, productID string, hints []string) ([]models.CandidateImageURL, error) {
	base, err := g.templates(ctx, tmpl, productID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(base)+g.opts.MaxHints)
	out := make([]models.CandidateImageURL, 0, min(len(base)+g.opts.MaxHints, g.opts.MaxCandidates))
	add := func(u string) {
		if seen[u] || len(out) >= g.opts.MaxCandidates {
			return
		}
		seen[u] = true
		out = append(out, models.CandidateImageURL{
			URL:       u,
			Rank:      len(out),
			SizeClass: models.SizeClassFromURL(u),
		})
	}
	for _, u := range base {
		add(u)
	}
	used := 0
	for _, h := range hints {
		if used >= g.opts.MaxHints {
			break
		}
		if IsBadImageURL(h) {
			continue
		}
		add(h)
		used++
	}
	return out, nil
}

func templateKey(platformName, productID string) string {
	return "templates:" + platformName + ":" + productID
}

func (g *Generator) templates(ctx context.Context, tmpl platform.ImageTemplates, productID string) ([]string, error) {
	return cache.GetOrLoad(ctx, g.cache, templateKey(tmpl.Name(), productID), g.opts.TemplateTTL,
		func(context.Context) ([]string, error) {
			return tmpl.CandidateURLs(productID)
		})
}
