package imagery

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lukman83/kidkazz-catalog/internal/cache"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

const DefaultHintTTL = time.Hour

var badURLMarkers = []string{
	"placeholder",
	"no+image",
	"no_image",
	"example.com",
	"dummyimage.com",
	"broken",
	"missing",
	"undefined",
	"null",
	"data:image",
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// IsBadImageURL reports whether u can never be a real product image:
// not http(s), no image extension, or a known placeholder pattern.
func IsBadImageURL(u string) bool {
	lower := strings.ToLower(strings.TrimSpace(u))
	for _, m := range badURLMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	parsed, err := url.Parse(lower)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return true
	}
	for _, ext := range imageExtensions {
		if strings.Contains(parsed.Path, ext) {
			return false
		}
	}
	return true
}

// HintSource is a platform that can suggest image URLs.
type HintSource interface {
	Name() string
	platform.HintSource
}

// Hints looks up API image hints with a TTL cache. Lookups never fail;
// an unavailable hint API yields no hints.
type Hints struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewHints(c *cache.Cache, ttl time.Duration, logger *slog.Logger) *Hints {
	if ttl <= 0 {
		ttl = DefaultHintTTL
	}
	return &Hints{cache: c, ttl: ttl, logger: logging.NewComponentLogger(logger, "hints")}
}

func hintKey(platform, productID string) string {
	return "hints:" + platform + ":" + productID
}

// Lookup returns the acceptable hint URLs for productID in source order.
func (h *Hints) Lookup(ctx context.Context, src HintSource, productID string) []string {
	hints, err := cache.GetOrLoad(ctx, h.cache, hintKey(src.Name(), productID), h.ttl, func(ctx context.Context) ([]string, error) {
		raw, err := src.ImageHints(ctx, productID)
		if err != nil {
			return nil, err
		}
		var good []string
		for _, u := range raw {
			if !IsBadImageURL(u) {
				good = append(good, u)
			}
		}
		return good, nil
	})
	if err != nil {
		h.logger.Debug("image hint lookup failed",
			logging.String(logging.FieldPlatform, src.Name()),
			logging.String(logging.FieldProductID, productID),
			logging.Error(err),
		)
		return nil
	}
	return hints
}
