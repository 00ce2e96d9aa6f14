package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS products (
    product_id        TEXT NOT NULL,
    platform          TEXT NOT NULL,
    name              TEXT NOT NULL,
    price             TEXT NOT NULL,
    discount_price    TEXT,
    card_price        TEXT,
    has_card_discount INTEGER NOT NULL DEFAULT 0,
    rating            REAL NOT NULL DEFAULT 0,
    reviews_count     INTEGER NOT NULL DEFAULT 0,
    quantity          INTEGER NOT NULL DEFAULT 0,
    is_available      INTEGER NOT NULL DEFAULT 0,
    image_url         TEXT NOT NULL,
    image_source      TEXT NOT NULL,
    product_url       TEXT NOT NULL,
    search_query      TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    PRIMARY KEY (product_id, platform)
);
CREATE INDEX IF NOT EXISTS idx_products_query ON products (search_query);
`

const productColumns = `product_id, platform, name, price, discount_price, card_price,
    has_card_discount, rating, reviews_count, quantity, is_available,
    image_url, image_source, product_url, search_query, created_at, updated_at`

// SQLite is a Store backed by a local SQLite file.
type SQLite struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLite{db: db, path: path, now: time.Now, logger: logging.NewComponentLogger(logger, "store")}
	s.logger.Debug("sqlite store opened", logging.String("path", path))
	return s, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Save(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	if err := validate(rec); err != nil {
		return models.ProductRecord{}, err
	}
	rec = stamp(rec, time.Time{}, s.now())
	ts := rec.UpdatedAt.Format(time.RFC3339Nano)

	var created string
	err := s.db.QueryRowContext(ctx, `
INSERT INTO products (`+productColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (product_id, platform) DO UPDATE SET
    name = excluded.name,
    price = excluded.price,
    discount_price = excluded.discount_price,
    card_price = excluded.card_price,
    has_card_discount = excluded.has_card_discount,
    rating = excluded.rating,
    reviews_count = excluded.reviews_count,
    quantity = excluded.quantity,
    is_available = excluded.is_available,
    image_url = excluded.image_url,
    image_source = excluded.image_source,
    product_url = excluded.product_url,
    search_query = excluded.search_query,
    updated_at = excluded.updated_at
RETURNING created_at`,
		rec.ProductID, rec.Platform, rec.Name,
		rec.Price.StringFixed(2), nullableDecimal(rec.DiscountPrice), nullableDecimal(rec.CardPrice),
		rec.HasCardDiscount, rec.Rating, rec.ReviewsCount, rec.Quantity, rec.IsAvailable,
		rec.ImageURL, string(rec.ImageSource), rec.ProductURL, rec.SearchQuery, ts, ts,
	).Scan(&created)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("upsert product %s: %w", rec.Key(), err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.ProductRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	return rec, nil
}

func (s *SQLite) FindByKey(ctx context.Context, key models.ProductKey) (models.ProductRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_id = ? AND platform = ?`,
		key.ProductID, key.Platform)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProductRecord{}, ErrNotFound
	}
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("find product %s: %w", key, err)
	}
	return rec, nil
}

func (s *SQLite) List(ctx context.Context, f Filter) ([]models.ProductRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.SearchQuery != "" {
		where = append(where, "search_query = ?")
		args = append(args, f.SearchQuery)
	}
	q := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY platform, product_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductRecord
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (models.ProductRecord, error) {
	var (
		rec                  models.ProductRecord
		price                string
		discount, card       sql.NullString
		source               string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.ProductID, &rec.Platform, &rec.Name, &price, &discount, &card,
		&rec.HasCardDiscount, &rec.Rating, &rec.ReviewsCount, &rec.Quantity, &rec.IsAvailable,
		&rec.ImageURL, &source, &rec.ProductURL, &rec.SearchQuery, &createdAt, &updatedAt,
	)
	if err != nil {
		return models.ProductRecord{}, err
	}
	rec.ImageSource = models.ImageSource(source)
	if rec.Price, err = decimal.NewFromString(price); err != nil {
		return models.ProductRecord{}, fmt.Errorf("parse price: %w", err)
	}
	if rec.DiscountPrice, err = parseNullDecimal(discount); err != nil {
		return models.ProductRecord{}, err
	}
	if rec.CardPrice, err = parseNullDecimal(card); err != nil {
		return models.ProductRecord{}, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.ProductRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.ProductRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return rec, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s.String, err)
	}
	return &d, nil
}
