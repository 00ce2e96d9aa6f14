package platform

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

type namedAdapter struct {
	Adapter
	name string
}

func (n namedAdapter) Name() string { return n.name }

func TestRegistryLookupAndAliases(t *testing.T) {
	r := NewRegistry(namedAdapter{name: "wildberries"}, namedAdapter{name: "Ozon"})

	for _, name := range []string{"wildberries", "WB", " wb ", "ozon", "oz"} {
		if _, err := r.Get(name); err != nil {
			t.Errorf("Get(%q): %v", name, err)
		}
	}
	if _, err := r.Get("tokopedia"); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("err = %v, want ErrUnknownPlatform", err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "ozon" || names[1] != "wildberries" {
		t.Errorf("Names = %v", names)
	}
}

func TestDiversifyKeepsShortLists(t *testing.T) {
	hits := []models.SearchHit{{ProductID: "1"}, {ProductID: "2"}}
	if got := Diversify(hits, 5, nil); len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestDiversifyMixesBands(t *testing.T) {
	var hits []models.SearchHit
	// First ten are all high rated and cheap; the tail holds the variety.
	for i := 0; i < 20; i++ {
		rating := 4.8
		if i >= 10 {
			rating = 3.0 + float64(i%3)*0.6
		}
		hits = append(hits, models.SearchHit{ProductID: strconv.Itoa(i), Rating: rating})
	}
	price := func(i int) (float64, bool) { return float64(100 + i*50), true }

	got := Diversify(hits, 6, price)
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	seen := map[string]bool{}
	var low bool
	for _, h := range got {
		if seen[h.ProductID] {
			t.Fatalf("duplicate %s", h.ProductID)
		}
		seen[h.ProductID] = true
		if h.Rating < 4.0 {
			low = true
		}
	}
	if !low {
		t.Error("expected a low rated product in the diversified set")
	}
}

func TestReportProgress(t *testing.T) {
	var got []string
	ctx := WithProgress(context.Background(), func(msg string) { got = append(got, msg) })
	ReportProgress(ctx, "a")
	ReportProgressf(ctx, "found %d", 3)
	ReportProgress(context.Background(), "ignored")
	if len(got) != 2 || got[1] != "found 3" {
		t.Fatalf("got %v", got)
	}
}
