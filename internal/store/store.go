// Package store persists product records keyed by (product_id, platform).
// Saves are idempotent upserts: the last write wins and created_at is kept
// from the first one. Records are never deleted.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

// ErrNotFound is returned by FindByKey for unknown keys.
var ErrNotFound = errors.New("product not found")

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Platform    string
	SearchQuery string
	Limit       int
}

func (f Filter) matches(r models.ProductRecord) bool {
	return (f.Platform == "" || r.Platform == f.Platform) &&
		(f.SearchQuery == "" || r.SearchQuery == f.SearchQuery)
}

// Store is the persistence boundary.
type Store interface {
	// Save upserts rec and returns the stored record.
	Save(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error)
	FindByKey(ctx context.Context, key models.ProductKey) (models.ProductRecord, error)
	// List returns matching records ordered by platform and product id.
	List(ctx context.Context, f Filter) ([]models.ProductRecord, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	// Path is the SQLite database file.
	Path string
	// DSN is the Postgres connection string.
	DSN string
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// stamp sets the timestamps of rec for a save at now given the existing
// created_at, if any.
func stamp(rec models.ProductRecord, existing time.Time, now time.Time) models.ProductRecord {
	now = now.UTC()
	if existing.IsZero() {
		rec.CreatedAt = now
	} else {
		rec.CreatedAt = existing
	}
	rec.UpdatedAt = now
	return rec
}

func validate(rec models.ProductRecord) error {
	if rec.ProductID == "" || rec.Platform == "" {
		return fmt.Errorf("record key %q is incomplete", rec.Key())
	}
	if rec.ImageURL == "" {
		return fmt.Errorf("record %s has no image url", rec.Key())
	}
	return nil
}
