package ozon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lukman83/kidkazz-catalog/internal/httputil"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

// pagePath is the site path whose widget states answer req.
func pagePath(req platform.Request) (string, error) {
	switch req.Type {
	case platform.SearchRequest:
		return "/search/?text=" + url.QueryEscape(req.Query), nil
	case platform.ProductDetailRequest:
		return "/product/" + req.ProductID + "/", nil
	default:
		return "", fmt.Errorf("unsupported request type %d", req.Type)
	}
}

// EntrypointStrategy asks the page JSON API for a page's widget states.
type EntrypointStrategy struct {
	client     *http.Client
	baseURL    string
	maxRetries int
	logger     *slog.Logger
}

func newEntrypointStrategy(client *http.Client, baseURL string, maxRetries int, logger *slog.Logger) *EntrypointStrategy {
	return &EntrypointStrategy{client: client, baseURL: baseURL, maxRetries: maxRetries, logger: logger}
}

func (s *EntrypointStrategy) Name() string { return "entrypoint" }

func (s *EntrypointStrategy) Execute(ctx context.Context, req platform.Request) (*platform.Result, error) {
	path, err := pagePath(req)
	if err != nil {
		return nil, err
	}
	endpoint := s.baseURL + "/api/entrypoint-api.bx/page/json/v2?url=" + url.QueryEscape(path)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range httputil.JSONHeaders(s.baseURL) {
		httpReq.Header[k] = v
	}
	resp, err := httputil.DoWithRetry(s.client, httpReq, s.maxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: endpoint}
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	states, err := parsePageJSON(body)
	if err != nil {
		return nil, err
	}
	hits := hitsFromStates(states, req, s.logger)
	if len(hits) == 0 {
		return nil, fmt.Errorf("no products in widget states")
	}
	return &platform.Result{Hits: hits, Strategy: s.Name(), Raw: body}, nil
}

// StaticPageStrategy fetches the rendered HTML and reads the data-state
// attributes of its widgets.
type StaticPageStrategy struct {
	client     *http.Client
	baseURL    string
	maxRetries int
	logger     *slog.Logger
}

func newStaticPageStrategy(client *http.Client, baseURL string, maxRetries int, logger *slog.Logger) *StaticPageStrategy {
	return &StaticPageStrategy{client: client, baseURL: baseURL, maxRetries: maxRetries, logger: logger}
}

func (s *StaticPageStrategy) Name() string { return "static" }

func (s *StaticPageStrategy) Execute(ctx context.Context, req platform.Request) (*platform.Result, error) {
	path, err := pagePath(req)
	if err != nil {
		return nil, err
	}
	pageURL := s.baseURL + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range httputil.BrowserHeaders() {
		httpReq.Header[k] = v
	}
	resp, err := httputil.DoWithRetry(s.client, httpReq, s.maxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: pageURL}
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	states, err := parsePageHTML(string(body))
	if err != nil {
		return nil, err
	}
	hits := hitsFromStates(states, req, s.logger)
	if len(hits) == 0 {
		return nil, fmt.Errorf("no widget state data found in page")
	}
	return &platform.Result{Hits: hits, Strategy: s.Name()}, nil
}
