package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

func record(id, platform, query string) models.ProductRecord {
	discount := decimal.RequireFromString("80")
	card := decimal.RequireFromString("72")
	return models.ProductRecord{
		ProductID:       id,
		Platform:        platform,
		Name:            "Конструктор " + id,
		Price:           decimal.RequireFromString("100"),
		DiscountPrice:   &discount,
		CardPrice:       &card,
		HasCardDiscount: true,
		Rating:          4.7,
		ReviewsCount:    12,
		Quantity:        5,
		IsAvailable:     true,
		ImageURL:        "https://basket-01.wbbasket.ru/vol1/part1/1/images/big/1.webp",
		ImageSource:     models.SourceValidated,
		ProductURL:      "https://www.wildberries.ru/catalog/" + id + "/detail.aspx",
		SearchQuery:     query,
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type opener func(t *testing.T, now func() time.Time) Store

func backends() map[string]opener {
	out := map[string]opener{
		"memory": func(_ *testing.T, now func() time.Time) Store {
			m := NewMemory()
			m.now = now
			return m
		},
		"sqlite": func(t *testing.T, now func() time.Time) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "catalog.db"), nil)
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			s.now = now
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("KIDKAZZ_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T, now func() time.Time) Store {
			p, err := OpenPostgres(context.Background(), dsn, nil)
			if err != nil {
				t.Fatalf("OpenPostgres: %v", err)
			}
			p.now = now
			t.Cleanup(func() {
				p.pool.Exec(context.Background(), "DELETE FROM products")
				p.Close()
			})
			return p
		}
	}
	return out
}

func TestSaveIsIdempotentUpsert(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			clk := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
			s := open(t, clk.now)
			ctx := context.Background()
			rec := record("123", "wildberries", "lego")

			first, err := s.Save(ctx, rec)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			second, err := s.Save(ctx, rec)
			if err != nil {
				t.Fatalf("Save again: %v", err)
			}
			if !second.CreatedAt.Equal(first.CreatedAt) {
				t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
			}
			if !second.UpdatedAt.After(first.UpdatedAt) {
				t.Errorf("updated_at not advanced: %v -> %v", first.UpdatedAt, second.UpdatedAt)
			}

			all, err := s.List(ctx, Filter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("got %d records after two saves, want 1", len(all))
			}

			got, err := s.FindByKey(ctx, rec.Key())
			if err != nil {
				t.Fatalf("FindByKey: %v", err)
			}
			if got.Name != rec.Name || !got.Price.Equal(rec.Price) || got.Quantity != 5 || !got.IsAvailable || !got.HasCardDiscount {
				t.Errorf("record = %+v", got)
			}
			if got.DiscountPrice == nil || !got.DiscountPrice.Equal(*rec.DiscountPrice) {
				t.Errorf("discount = %v", got.DiscountPrice)
			}
			if got.ImageSource != models.SourceValidated || got.Rating != 4.7 {
				t.Errorf("image source / rating = %s / %v", got.ImageSource, got.Rating)
			}
			if !got.CreatedAt.Equal(first.CreatedAt) {
				t.Errorf("stored created_at = %v, want %v", got.CreatedAt, first.CreatedAt)
			}
		})
	}
}

func TestSaveLastWriteWins(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, (&clock{t: time.Unix(0, 0)}).now)
			ctx := context.Background()

			rec := record("5", "ozon", "кукла")
			if _, err := s.Save(ctx, rec); err != nil {
				t.Fatal(err)
			}
			rec.Quantity = 0
			rec.IsAvailable = false
			rec.DiscountPrice = nil
			rec.ImageURL = models.PlaceholderImageURL
			rec.ImageSource = models.SourcePlaceholder
			if _, err := s.Save(ctx, rec); err != nil {
				t.Fatal(err)
			}

			got, err := s.FindByKey(ctx, rec.Key())
			if err != nil {
				t.Fatal(err)
			}
			if got.IsAvailable || got.DiscountPrice != nil || !models.IsPlaceholder(got.ImageURL) {
				t.Errorf("record = %+v", got)
			}
		})
	}
}

func TestFindByKeyNotFound(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, time.Now)
			_, err := s.FindByKey(context.Background(), models.ProductKey{ProductID: "404", Platform: "ozon"})
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListFilters(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, time.Now)
			ctx := context.Background()
			for _, r := range []models.ProductRecord{
				record("2", "wildberries", "lego"),
				record("1", "wildberries", "lego"),
				record("3", "ozon", "lego"),
				record("4", "wildberries", "кукла"),
			} {
				if _, err := s.Save(ctx, r); err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.List(ctx, Filter{Platform: "wildberries", SearchQuery: "lego"})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].ProductID != "1" || got[1].ProductID != "2" {
				t.Errorf("filtered = %+v", got)
			}

			limited, err := s.List(ctx, Filter{Limit: 3})
			if err != nil {
				t.Fatal(err)
			}
			if len(limited) != 3 || limited[0].Platform != "ozon" {
				t.Errorf("limited = %+v", limited)
			}
		})
	}
}

func TestSaveRejectsIncompleteRecord(t *testing.T) {
	s := NewMemory()
	rec := record("1", "wildberries", "")
	rec.ImageURL = ""
	if _, err := s.Save(context.Background(), rec); err == nil {
		t.Error("Save accepted a record without image url")
	}
	rec = record("", "wildberries", "")
	if _, err := s.Save(context.Background(), rec); err == nil {
		t.Error("Save accepted a record without product id")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mongo"}, nil); err == nil {
		t.Error("Open accepted an unknown driver")
	}
}
