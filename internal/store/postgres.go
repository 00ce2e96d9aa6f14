package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
)

var postgresSchema = []string{`
CREATE TABLE IF NOT EXISTS products (
    product_id        TEXT NOT NULL,
    platform          TEXT NOT NULL,
    name              TEXT NOT NULL,
    price             NUMERIC(14,2) NOT NULL,
    discount_price    NUMERIC(14,2),
    card_price        NUMERIC(14,2),
    has_card_discount BOOLEAN NOT NULL DEFAULT false,
    rating            DOUBLE PRECISION NOT NULL DEFAULT 0,
    reviews_count     INTEGER NOT NULL DEFAULT 0,
    quantity          INTEGER NOT NULL DEFAULT 0,
    is_available      BOOLEAN NOT NULL DEFAULT false,
    image_url         TEXT NOT NULL,
    image_source      TEXT NOT NULL,
    product_url       TEXT NOT NULL,
    search_query      TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (product_id, platform)
)`,
	`CREATE INDEX IF NOT EXISTS idx_products_query ON products (search_query)`,
}

const postgresSelect = `SELECT product_id, platform, name,
    price::text, discount_price::text, card_price::text,
    has_card_discount, rating, reviews_count, quantity, is_available,
    image_url, image_source, product_url, search_query, created_at, updated_at
FROM products`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger *slog.Logger
}

// OpenPostgres connects to dsn, pings the server and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(connectCtx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	p := &Postgres{pool: pool, now: time.Now, logger: logging.NewComponentLogger(logger, "store")}
	p.logger.Debug("postgres store connected")
	return p, nil
}

func (p *Postgres) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	if err := validate(rec); err != nil {
		return models.ProductRecord{}, err
	}
	rec = stamp(rec, time.Time{}, p.now())

	err := p.pool.QueryRow(ctx, `
INSERT INTO products (product_id, platform, name, price, discount_price, card_price,
    has_card_discount, rating, reviews_count, quantity, is_available,
    image_url, image_source, product_url, search_query, created_at, updated_at)
VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
ON CONFLICT (product_id, platform) DO UPDATE SET
    name = EXCLUDED.name,
    price = EXCLUDED.price,
    discount_price = EXCLUDED.discount_price,
    card_price = EXCLUDED.card_price,
    has_card_discount = EXCLUDED.has_card_discount,
    rating = EXCLUDED.rating,
    reviews_count = EXCLUDED.reviews_count,
    quantity = EXCLUDED.quantity,
    is_available = EXCLUDED.is_available,
    image_url = EXCLUDED.image_url,
    image_source = EXCLUDED.image_source,
    product_url = EXCLUDED.product_url,
    search_query = EXCLUDED.search_query,
    updated_at = EXCLUDED.updated_at
RETURNING created_at`,
		rec.ProductID, rec.Platform, rec.Name,
		rec.Price.StringFixed(2), nullableDecimal(rec.DiscountPrice), nullableDecimal(rec.CardPrice),
		rec.HasCardDiscount, rec.Rating, rec.ReviewsCount, rec.Quantity, rec.IsAvailable,
		rec.ImageURL, string(rec.ImageSource), rec.ProductURL, rec.SearchQuery, rec.UpdatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("upsert product %s: %w", rec.Key(), err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (p *Postgres) FindByKey(ctx context.Context, key models.ProductKey) (models.ProductRecord, error) {
	row := p.pool.QueryRow(ctx, postgresSelect+` WHERE product_id = $1 AND platform = $2`, key.ProductID, key.Platform)
	rec, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ProductRecord{}, ErrNotFound
	}
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("find product %s: %w", key, err)
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, f Filter) ([]models.ProductRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Platform != "" {
		args = append(args, f.Platform)
		where = append(where, fmt.Sprintf("platform = $%d", len(args)))
	}
	if f.SearchQuery != "" {
		args = append(args, f.SearchQuery)
		where = append(where, fmt.Sprintf("search_query = $%d", len(args)))
	}
	q := postgresSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY platform, product_id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductRecord
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPostgres(row pgx.Row) (models.ProductRecord, error) {
	var (
		rec            models.ProductRecord
		price          string
		discount, card *string
		source         string
	)
	err := row.Scan(
		&rec.ProductID, &rec.Platform, &rec.Name, &price, &discount, &card,
		&rec.HasCardDiscount, &rec.Rating, &rec.ReviewsCount, &rec.Quantity, &rec.IsAvailable,
		&rec.ImageURL, &source, &rec.ProductURL, &rec.SearchQuery, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return models.ProductRecord{}, err
	}
	rec.ImageSource = models.ImageSource(source)
	rec.CreatedAt, rec.UpdatedAt = rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()
	if rec.Price, err = decimal.NewFromString(price); err != nil {
		return models.ProductRecord{}, fmt.Errorf("parse price: %w", err)
	}
	for _, f := range []struct {
		src *string
		dst **decimal.Decimal
	}{{discount, &rec.DiscountPrice}, {card, &rec.CardPrice}} {
		if f.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			return models.ProductRecord{}, fmt.Errorf("parse decimal %q: %w", *f.src, err)
		}
		*f.dst = &d
	}
	return rec, nil
}
