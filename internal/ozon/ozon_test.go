package ozon

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/normalize"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

func hit(payload string) models.SearchHit {
	return models.SearchHit{ProductID: "1", Platform: Name, Payload: json.RawMessage(payload)}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		price    string
		discount string
		card     string
	}{
		{"price block strings", `{"price":{"price":"1 990 ₽","originalPrice":"2 490 ₽"}}`, "2490", "1990", "1890.5"},
		{"prices block", `{"prices":{"original":1000,"discounted":800}}`, "1000", "800", "760"},
		{"top level fields", `{"price":"500","originalPrice":"700"}`, "700", "500", "475"},
		{"top level without discount", `{"price":500}`, "500", "", ""},
		{"ozon card action", `{"prices":{"original":1000,"discounted":800},"marketingActions":[{"type":"other","discountPercent":50},{"type":"ozon_card","discountPercent":10}]}`, "1000", "800", "720"},
		{"last ozon card promo wins", `{"prices":{"original":1000,"discounted":800},"promos":[{"name":"ozon_card_a","discountValue":5},{"name":"Ozon_Card_b","discountValue":20}]}`, "1000", "800", "640"},
		{"card promo ignored without discount", `{"price":500,"promos":[{"name":"ozon_card","discountValue":20}]}`, "500", "", ""},
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
			checkOptional(t, "discount", got.DiscountPrice, tt.discount)
			checkOptional(t, "card", got.CardPrice, tt.card)
		})
	}
}

func checkOptional(t *testing.T, field string, got *decimal.Decimal, want string) {
	t.Helper()
	switch {
	case want == "" && got != nil:
		t.Errorf("%s = %s, want absent", field, got)
	case want != "" && (got == nil || !got.Equal(dec(want))):
		t.Errorf("%s = %v, want %s", field, got, want)
	}
}

func TestExtractPriceUnnormalizable(t *testing.T) {
	c := New(nil, Options{})
	for _, payload := range []string{`{"title":"no price"}`, `not json`} {
		if _, err := c.ExtractPrice(hit(payload)); !errors.Is(err, normalize.ErrUnnormalizable) {
			t.Errorf("ExtractPrice(%s) err = %v, want ErrUnnormalizable", payload, err)
		}
	}
}

func TestExtractQuantity(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"stocks", `{"stocks":[{"present":3},{"present":2}]}`, 5},
		{"warehouses", `{"warehouses":[{"quantity":4},{"quantity":"6"}]}`, 10},
		{"available flag", `{"available":true}`, 1},
		{"status keyword", `{"status":"IN_STOCK"}`, 1},
		{"max order raises", `{"available":true,"maxOrderQuantity":7}`, 7},
		{"max order never lowers", `{"stocks":[{"present":12}],"maxOrderQuantity":7}`, 12},
		{"buybox", `{"buybox":{"stock":9}}`, 9},
		{"nothing", `{"available":false,"status":"sold_out"}`, 0},
	}
	c := New(nil, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ExtractQuantity(hit(tt.payload))
			if got.Quantity != tt.want {
				t.Errorf("quantity = %d, want %d", got.Quantity, tt.want)
			}
			if got.IsAvailable != (tt.want > 0) {
				t.Errorf("is_available = %v, want %v", got.IsAvailable, tt.want > 0)
			}
		})
	}
}

func TestExtractNumericID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"123456789", "123456789", true},
		{"lego-city-60312-123456789", "123456789", true},
		{"https://www.ozon.ru/product/lego-city-123456789/?asb=1", "123456789", true},
		{"/product/nabor-987654321/", "987654321", true},
		{"toy 1234567 extra", "1234567", true},
		{"no-id-here", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractNumericID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractNumericID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCandidateURLs(t *testing.T) {
	c := New(nil, Options{})
	urls, err := c.CandidateURLs("lego-123456789")
	if err != nil {
		t.Fatalf("CandidateURLs: %v", err)
	}
	if urls[0] != "https://ozon-st.cdn.ngenix.net/m/123456789/1.jpg" {
		t.Errorf("first candidate = %s", urls[0])
	}
	seen := make(map[string]bool)
	for _, u := range urls {
		if seen[u] {
			t.Errorf("duplicate candidate %s", u)
		}
		seen[u] = true
	}
	for _, want := range []string{
		"https://ozon-st.cdn.ngenix.net/m/123456789/image.webp",
		"https://ozon-st.cdn.ngenix.net/m/123456789/main.png",
		"https://cdn1.ozone.ru/multimedia/wc1000/123456789.jpg",
	} {
		if !seen[want] {
			t.Errorf("missing candidate %s", want)
		}
	}

	again, _ := c.CandidateURLs("lego-123456789")
	if strings.Join(again, ",") != strings.Join(urls, ",") {
		t.Error("candidates are not deterministic")
	}

	if _, err := c.CandidateURLs("no-id"); !errors.Is(err, platform.ErrInvalidID) {
		t.Errorf("bad id err = %v, want ErrInvalidID", err)
	}
}

func widgetPage(t *testing.T, states map[string]any) []byte {
	t.Helper()
	encoded := make(map[string]string, len(states))
	for k, v := range states {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		encoded[k] = string(b)
	}
	b, err := json.Marshal(map[string]any{"widgetStates": encoded})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSearchViaEntrypoint(t *testing.T) {
	page := widgetPage(t, map[string]any{
		"searchResultsV2-226897-default-1": map[string]any{
			"items": []any{
				map[string]any{"sku": 111111111, "title": "Конструктор", "price": "1 990 ₽", "rating": 4.8},
				map[string]any{"title": "no id"},
				map[string]any{"action": map[string]any{"link": "/product/kukla-222222222/"}, "prices": map[string]any{"original": 1000, "discounted": 800}},
			},
		},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/entrypoint-api.bx/page/json/v2" {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		if got := r.URL.Query().Get("url"); got != "/search/?text=lego" {
			t.Errorf("url param = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(page)
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL})
	hits, err := c.Search(context.Background(), "lego", platform.SearchOpts{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ProductID != "111111111" || hits[0].Name != "Конструктор" || hits[0].Rating != 4.8 {
		t.Errorf("first hit = %+v", hits[0])
	}
	if hits[1].ProductID != "222222222" || hits[1].Platform != Name {
		t.Errorf("second hit = %+v", hits[1])
	}
}

func TestSearchFallsBackToStaticPage(t *testing.T) {
	state := `{"items":[{"sku":"333333333","title":"Кукла","price":"990"}]}`
	body := `<html><body><div id="state-searchResultsV2-1" data-state="` + html.EscapeString(state) + `"></div></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(body))
			return
		}
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL})
	hits, err := c.Search(context.Background(), "кукла", platform.SearchOpts{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ProductID != "333333333" {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestSearchAllStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL, FastTimeout: 2 * time.Second})
	start := time.Now()
	if _, err := c.Search(context.Background(), "lego", platform.SearchOpts{}); err == nil {
		t.Fatal("Search succeeded, want error")
	}
	if time.Since(start) > time.Second {
		t.Error("search waited for the fast timeout after every strategy failed")
	}
}

func TestDetail(t *testing.T) {
	page := widgetPage(t, map[string]any{
		"webPrice-3121879-default-1":          map[string]any{"price": "1 990 ₽", "originalPrice": "2 490 ₽", "isAvailable": true},
		"webProductHeading-943795-default-1": map[string]any{"title": "Конструктор LEGO"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "/product/123456789/" {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		w.Write(page)
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL})
	got, err := c.Detail(context.Background(), "lego-123456789")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if got.ProductID != "123456789" || got.Name != "Конструктор LEGO" {
		t.Errorf("hit = %+v", got)
	}
	price, err := c.ExtractPrice(got)
	if err != nil {
		t.Fatalf("ExtractPrice: %v", err)
	}
	if !price.Price.Equal(dec("2490")) || price.DiscountPrice == nil || !price.DiscountPrice.Equal(dec("1990")) {
		t.Errorf("price = %+v", price)
	}
	if inv := c.ExtractQuantity(got); !inv.IsAvailable {
		t.Errorf("inventory = %+v, want available", inv)
	}
}

func TestDetailNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"widgetStates":{}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL})
	if _, err := c.Detail(context.Background(), "123456789"); !errors.Is(err, platform.ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}

func TestImageHintsFromComposer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/composer-api.bx/page/json/v2" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"widgetStates":{"gallery":{"images":[{"src":"https://cdn1.ozone.ru/s3/multimedia-1/123.jpg"},{"src":"https://cdn1.ozone.ru/s3/multimedia-1/123.jpg"}],"link":"/product/1/"}}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL})
	hints, err := c.ImageHints(context.Background(), "123456789")
	if err != nil {
		t.Fatalf("ImageHints: %v", err)
	}
	if len(hints) != 1 || hints[0] != "https://cdn1.ozone.ru/s3/multimedia-1/123.jpg" {
		t.Errorf("hints = %v", hints)
	}
}

func TestImageHintsFallsBackToOGImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/product/123456789/" {
			w.Write([]byte(`<html><head><meta property="og:image" content="https://cdn1.ozone.ru/og.jpg"></head></html>`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{BaseURL: srv.URL})
	hints, err := c.ImageHints(context.Background(), "123456789")
	if err != nil {
		t.Fatalf("ImageHints: %v", err)
	}
	if len(hints) != 1 || hints[0] != "https://cdn1.ozone.ru/og.jpg" {
		t.Errorf("hints = %v", hints)
	}
}

func TestExtractOGImageGalleryFallback(t *testing.T) {
	got, err := extractOGImage(`<html><body><img data-widget="webGallery" src="https://cdn1.ozone.ru/g.jpg"></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://cdn1.ozone.ru/g.jpg" {
		t.Errorf("got %q", got)
	}
}
