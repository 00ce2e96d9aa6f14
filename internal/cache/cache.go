// Package cache provides the TTL result cache shared by the image stages.
//
// Values are stored as-is behind a Backend. Cache layers singleflight on top
// so that concurrent loads of the same key run the loader once, and it treats
// every backend error as a miss: a broken cache slows resolution down but
// never fails it.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
)

// Backend is a key/value store with per-entry expiry.
type Backend interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Cache wraps a Backend with atomic get-or-load.
type Cache struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
}

// New returns a Cache over backend. A nil backend disables caching.
func New(backend Backend, logger *slog.Logger) *Cache {
	return &Cache{
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "cache"),
	}
}

// Get returns the cached value for key if present and of type T.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c == nil || c.backend == nil {
		return zero, false
	}
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", logging.String("key", key), logging.Error(err))
		return zero, false
	}
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores value under key. Failures are logged and otherwise ignored.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache set failed", logging.String("key", key), logging.Error(err))
	}
}

// GetOrLoad returns the cached value for key, or runs load and caches its
// result for ttl when load returns a nil error. Concurrent callers for the
// same key share one load. A waiter whose shared load was canceled by
// another caller runs the load again under its own context.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := Get[T](ctx, c, key); ok {
		return v, nil
	}
	if c == nil {
		return load(ctx)
	}

	var (
		res    any
		err    error
		shared bool
	)
	for range 2 {
		res, err, shared = c.group.Do(key, func() (any, error) {
			// Another caller may have filled the key while we waited on the group.
			if v, ok := Get[T](ctx, c, key); ok {
				return v, nil
			}
			v, err := load(ctx)
			if err != nil {
				return v, err
			}
			Set(ctx, c, key, v, ttl)
			return v, nil
		})
		if !shared || !isContextErr(err) || ctx.Err() != nil {
			break
		}
	}
	v, _ := res.(T)
	return v, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
