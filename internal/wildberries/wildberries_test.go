package wildberries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

func hit(payload string) models.SearchHit {
	return models.SearchHit{ProductID: "1", Platform: Name, Payload: json.RawMessage(payload)}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExtractPriceSizeBlock(t *testing.T) {
	c := New(nil, Options{})
	got, err := c.ExtractPrice(hit(`{"sizes":[{"price":{"basic":10000,"product":8000}}]}`))
	if err != nil {
		t.Fatalf("ExtractPrice: %v", err)
	}
	if !got.Price.Equal(dec("100")) {
		t.Errorf("price = %s, want 100.00", got.Price)
	}
	if got.DiscountPrice == nil || !got.DiscountPrice.Equal(dec("80")) {
		t.Errorf("discount = %v, want 80.00", got.DiscountPrice)
	}
	if got.CardPrice == nil || !got.CardPrice.Equal(dec("72")) {
		t.Errorf("card = %v, want 72.00", got.CardPrice)
	}
	if !got.HasCardDiscount {
		t.Error("has_card_discount = false, want true")
	}
}

func TestExtractPricePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		price    string
		discount string
	}{
		{"flat fields", `{"priceU":250000,"salePriceU":199900}`, "2500", "1999"},
		{"flat used when sizes carry no price", `{"sizes":[{"stocks":[]}],"priceU":1000}`, "10", ""},
		{"first discounted size wins", `{"sizes":[{"price":{"basic":5000,"product":5000}},{"price":{"basic":6000,"product":4000}},{"price":{"basic":9000,"product":1000}}]}`, "60", "40"},
		{"extended lowers price", `{"sizes":[{"price":{"basic":10000,"product":10000}}],"extended":{"basicPriceU":9500}}`, "95", ""},
		{"client sale on discount", `{"sizes":[{"price":{"basic":10000,"product":8000}}],"clientSale":10}`, "100", "72"},
		{"client sale without discount ignored", `{"priceU":10000,"clientSale":10}`, "100", ""},
	}
	c := New(nil, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ExtractPrice(hit(tt.payload))
			if err != nil {
				t.Fatalf("ExtractPrice: %v", err)
			}
			if !got.Price.Equal(dec(tt.price)) {
				t.Errorf("price = %s, want %s", got.Price, tt.price)
			}
			switch {
			case tt.discount == "" && got.DiscountPrice != nil:
				t.Errorf("discount = %s, want absent", got.DiscountPrice)
			case tt.discount != "" && (got.DiscountPrice == nil || !got.DiscountPrice.Equal(dec(tt.discount))):
				t.Errorf("discount = %v, want %s", got.DiscountPrice, tt.discount)
			}
		})
	}
}

func TestExtractPriceClientSaleRederivesCard(t *testing.T) {
	c := New(nil, Options{})
	got, err := c.ExtractPrice(hit(`{"sizes":[{"price":{"basic":10000,"product":8000}}],"clientSale":10}`))
	if err != nil {
		t.Fatal(err)
	}
	// 80.00 * 0.9 = 72.00, then 72.00 * 0.9 = 64.80
	if got.CardPrice == nil || !got.CardPrice.Equal(dec("64.8")) {
		t.Fatalf("card = %v, want 64.80", got.CardPrice)
	}
}

func TestExtractPriceUnnormalizable(t *testing.T) {
	c := New(nil, Options{})
	for _, payload := range []string{`{"name":"no price"}`, `not json`} {
		if _, err := c.ExtractPrice(hit(payload)); !errors.Is(err, normalize.ErrUnnormalizable) {
			t.Errorf("payload %s: err = %v, want ErrUnnormalizable", payload, err)
		}
	}
}

func TestExtractQuantity(t *testing.T) {
	tests := []struct {
		payload   string
		qty       int
		available bool
	}{
		{`[{"stocks":[{"qty":0},{"qty":5}]}]`, 5, true},
		{`[]`, 0, false},
	}
	c := New(nil, Options{})
	for _, tt := range tests {
		got := c.ExtractQuantity(hit(`{"sizes":` + tt.payload + `}`))
		if got.Quantity != tt.qty || got.IsAvailable != tt.available {
			t.Errorf("sizes %s: got %+v, want %d/%v", tt.payload, got, tt.qty, tt.available)
		}
	}

	fallbacks := map[string]int{
		`{"totalQuantity":12}`:                          12,
		`{"quantity":3}`:                                3,
		`{"extended":{"basicSale":7}}`:                  7,
		`{"sizes":[{"stocks":[{"qty":2}]}],"quantity":9}`: 2,
	}
	for payload, want := range fallbacks {
		if got := c.ExtractQuantity(hit(payload)); got.Quantity != want || !got.IsAvailable {
			t.Errorf("%s: got %+v, want %d", payload, got, want)
		}
	}
}

func TestCandidateURLsOrder(t *testing.T) {
	c := New(nil, Options{})
	urls, err := c.CandidateURLs("123456789")
	if err != nil {
		t.Fatalf("CandidateURLs: %v", err)
	}
	want := []string{
		"https://basket-01.wbbasket.ru/vol1234/part123456/123456789/images/big/1.webp",
		"https://basket-01.wb.ru/vol1234/part123456/123456789/images/big/1.webp",
		"https://basket-02.wbbasket.ru/vol1234/part123456/123456789/images/big/1.webp",
	}
	for i, w := range want {
		if urls[i] != w {
			t.Errorf("urls[%d] = %s, want %s", i, urls[i], w)
		}
	}
	if got := len(urls); got != 80 {
		t.Errorf("len = %d, want 80", got)
	}
	if last := urls[len(urls)-1]; !strings.Contains(last, "wbstatic.net/c516x688") {
		t.Errorf("last url = %s, want legacy c516x688", last)
	}

	again, _ := c.CandidateURLs("123456789")
	for i := range urls {
		if urls[i] != again[i] {
			t.Fatalf("generation not deterministic at %d", i)
		}
	}
}

func TestCandidateURLsRejectsBadID(t *testing.T) {
	c := New(nil, Options{})
	for _, id := range []string{"", "abc", "-5", "0"} {
		if _, err := c.CandidateURLs(id); !errors.Is(err, platform.ErrInvalidID) {
			t.Errorf("id %q: err = %v, want ErrInvalidID", id, err)
		}
		if _, ok := c.DirectImageURL(id); ok {
			t.Errorf("id %q: direct url should be unavailable", id)
		}
	}
}

func TestSearchParsesBothShapes(t *testing.T) {
	bodies := []string{
		`{"data":{"products":[{"id":11,"name":"Lego","reviewRating":4.9,"feedbacks":120},{"id":0},{"id":12,"name":"Doll"}]}}`,
		`{"products":[{"id":11,"name":"Lego","reviewRating":4.9,"feedbacks":120},{"id":12,"name":"Doll"}]}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("query") != "lego" || r.URL.Query().Get("resultset") != "catalog" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(body))
		}))
		c := New(srv.Client(), Options{SearchURL: srv.URL})
		hits, err := c.Search(context.Background(), "lego", platform.SearchOpts{Limit: 10})
		srv.Close()
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 2 {
			t.Fatalf("len(hits) = %d, want 2", len(hits))
		}
		if hits[0].ProductID != "11" || hits[0].Rating != 4.9 || hits[0].ReviewsCount != 120 || hits[0].Platform != Name {
			t.Errorf("hit[0] = %+v", hits[0])
		}
		if len(hits[0].Payload) == 0 {
			t.Error("payload not kept")
		}
	}
}

func TestSearchDiversifies(t *testing.T) {
	var products []string
	for i := 1; i <= 30; i++ {
		rating := 3.5 + float64(i%4)*0.4
		products = append(products, fmt.Sprintf(`{"id":%d,"reviewRating":%.1f,"salePriceU":%d}`, i, rating, i*1000))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"products":[` + strings.Join(products, ",") + `]}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{SearchURL: srv.URL})
	hits, err := c.Search(context.Background(), "toy", platform.SearchOpts{Limit: 12})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 12 {
		t.Fatalf("len = %d, want 12", len(hits))
	}
	seen := map[string]bool{}
	var high, low bool
	for _, h := range hits {
		if seen[h.ProductID] {
			t.Fatalf("duplicate %s", h.ProductID)
		}
		seen[h.ProductID] = true
		if h.Rating >= 4.5 {
			high = true
		}
		if h.Rating < 4.0 {
			low = true
		}
	}
	if !high || !low {
		t.Errorf("expected both rating bands, high=%v low=%v", high, low)
	}
}

func TestDetailAndHints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("nm") {
		case "123456789":
			_, _ = w.Write([]byte(`{"data":{"products":[{"id":123456789,"name":"Car","pics":3,"sizes":[{"price":{"basic":10000,"product":8000},"stocks":[{"qty":4}]}]}]}}`))
		case "200000":
			_, _ = w.Write([]byte(`{"data":{"products":[{"id":200000,"pics":[555000]}]}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"products":[]}}`))
		}
	}))
	defer srv.Close()
	c := New(srv.Client(), Options{CardURL: srv.URL})
	ctx := context.Background()

	h, err := c.Detail(ctx, "123456789")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if h.Name != "Car" {
		t.Errorf("name = %q", h.Name)
	}
	if inv := c.ExtractQuantity(h); inv.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", inv.Quantity)
	}

	hints, err := c.ImageHints(ctx, "123456789")
	if err != nil {
		t.Fatalf("ImageHints: %v", err)
	}
	if len(hints) != 5 {
		t.Fatalf("hints = %v, want 3 pictures + 2 mirrors", hints)
	}
	if !strings.HasSuffix(hints[1], "/images/big/2.webp") {
		t.Errorf("hints[1] = %s", hints[1])
	}

	hints, _ = c.ImageHints(ctx, "200000")
	if hints[0] != "https://images.wbstatic.net/big/new/555000.jpg" {
		t.Errorf("hints[0] = %s", hints[0])
	}

	if _, err := c.Detail(ctx, "999"); !errors.Is(err, platform.ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}
