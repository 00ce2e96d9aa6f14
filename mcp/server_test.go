package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/lukman83/kidkazz-catalog/internal/cache"
	"github.com/lukman83/kidkazz-catalog/internal/imagery"
	"github.com/lukman83/kidkazz-catalog/internal/instrument"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/pipeline"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
	"github.com/lukman83/kidkazz-catalog/internal/store"
)

// shop is an adapter whose products never have a resolvable image, so
// every record ends on the placeholder without network access.
type shop struct{}

func (shop) Name() string { return "ozon" }

func (shop) Search(_ context.Context, query string, opts platform.SearchOpts) ([]models.SearchHit, error) {
	var hits []models.SearchHit
	for i := range min(opts.Limit, 3) {
		hits = append(hits, models.SearchHit{
			ProductID: fmt.Sprint(100 + i),
			Platform:  "ozon",
			Name:      fmt.Sprintf("%s %d", query, i),
			Rating:    4.5,
		})
	}
	return hits, nil
}

func (shop) Detail(_ context.Context, id string) (models.SearchHit, error) {
	return models.SearchHit{ProductID: id, Platform: "ozon"}, nil
}

func (shop) ExtractPrice(h models.SearchHit) (models.PriceInfo, error) {
	if h.ProductID == "101" {
		return models.PriceInfo{Price: decimal.NewFromInt(2000)}, nil
	}
	return models.PriceInfo{Price: decimal.NewFromInt(1000)}, nil
}

func (shop) ExtractQuantity(models.SearchHit) models.Inventory {
	return models.Inventory{Quantity: 1, IsAvailable: true}
}

func (shop) CandidateURLs(string) ([]string, error) { return nil, platform.ErrInvalidID }

func (shop) DirectImageURL(string) (string, bool) { return "", false }

func (shop) ProductURL(id string) string { return "https://www.ozon.ru/product/" + id + "/" }

func (shop) ImageHints(context.Context, string) ([]string, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, *instrument.Instrumenter) {
	t.Helper()
	c := cache.New(cache.NewMemory(), nil)
	inst := instrument.New(nil, nil)
	resolver := imagery.NewResolver(
		imagery.NewGenerator(c, imagery.GeneratorOptions{}),
		imagery.NewHints(c, time.Hour, nil),
		imagery.NewValidator(nil, c, imagery.ValidatorOptions{}),
		imagery.NewAcquirer(nil, c, imagery.AcquirerOptions{}),
		imagery.ResolverOptions{Instrumenter: inst},
	)
	p := pipeline.New(platform.NewRegistry(shop{}), resolver, store.NewMemory(), pipeline.Options{Instrumenter: inst})
	return New(p, "ozon", nil), inst
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text, res.IsError
	case *mcp.TextContent:
		return c.Text, res.IsError
	default:
		t.Fatalf("unexpected content %T", c)
		return "", false
	}
}

func TestSearchThenGetProduct(t *testing.T) {
	s, _ := newTestServer(t)

	text, isErr := call(t, s.handleSearchProducts, map[string]any{"keyword": "кукла", "limit": 2})
	if isErr {
		t.Fatalf("search failed: %s", text)
	}
	var batch pipeline.Batch
	if err := json.Unmarshal([]byte(text), &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(batch.Records) != 2 || batch.Records[0].ImageSource != models.SourcePlaceholder {
		t.Fatalf("batch = %+v", batch)
	}

	text, isErr = call(t, s.handleGetProduct, map[string]any{"product_id": "101", "platform": "oz"})
	if isErr {
		t.Fatalf("get_product failed: %s", text)
	}
	var rec models.ProductRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Name != "кукла 1" || !rec.Price.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("record = %+v", rec)
	}

	text, isErr = call(t, s.handleCatalogStats, map[string]any{"keyword": "кукла"})
	if isErr || !strings.Contains(text, `"count": 2`) {
		t.Fatalf("stats = %s", text)
	}
}

func TestToolErrors(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
		want    string
	}{
		{"missing keyword", s.handleSearchProducts, map[string]any{}, "keyword is required"},
		{"unknown platform", s.handleSearchProducts, map[string]any{"keyword": "x", "platform": "amazon"}, "unknown platform"},
		{"missing id", s.handleResolveImage, map[string]any{}, "product_id is required"},
		{"not stored", s.handleGetProduct, map[string]any{"product_id": "999"}, "not in the catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, tt.handler, tt.args)
			if !isErr || !strings.Contains(text, tt.want) {
				t.Fatalf("result = %q (error %v), want error containing %q", text, isErr, tt.want)
			}
		})
	}
}

func TestResolveImageTool(t *testing.T) {
	s, _ := newTestServer(t)
	text, isErr := call(t, s.handleResolveImage, map[string]any{"product_id": "5"})
	if isErr {
		t.Fatal(text)
	}
	var out imagery.Outcome
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatal(err)
	}
	if out.URL != models.PlaceholderImageURL || out.ResolutionID == "" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestHTTPHandler(t *testing.T) {
	s, inst := newTestServer(t)
	srv := httptest.NewServer(s.Handler("secret", inst.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}

	for _, auth := range []string{"", "Bearer wrong", "secret"} {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(`{}`))
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("auth %q: status %d, want 401", auth, resp.StatusCode)
		}
	}

	call(t, s.handleResolveImage, map[string]any{"product_id": "5"})
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "kidkazz_image_tier_total") {
		t.Fatalf("metrics missing tier counter:\n%s", body)
	}
}
