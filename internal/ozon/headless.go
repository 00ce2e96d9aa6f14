package ozon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/lukman83/kidkazz-catalog/internal/platform"
)

// HeadlessStrategy renders the page in a browser and reads the widget
// states from the resulting DOM. It is the slow fallback.
type HeadlessStrategy struct {
	baseURL string
	logger  *slog.Logger
}

func newHeadlessStrategy(baseURL string, logger *slog.Logger) *HeadlessStrategy {
	return &HeadlessStrategy{baseURL: baseURL, logger: logger}
}

func (h *HeadlessStrategy) Name() string { return "headless" }

func (h *HeadlessStrategy) Execute(ctx context.Context, req platform.Request) (*platform.Result, error) {
	path, err := pagePath(req)
	if err != nil {
		return nil, err
	}

	page, cleanup, err := h.openPage(ctx, h.baseURL+path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	timed := page.Timeout(15 * time.Second)
	if err := timed.WaitStable(time.Second); err == nil {
		_ = timed.WaitDOMStable(2*time.Second, 0.1)
	}

	content, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("get page HTML: %w", err)
	}
	states, err := parsePageHTML(content)
	if err != nil {
		return nil, err
	}
	hits := hitsFromStates(states, req, h.logger)
	if len(hits) == 0 {
		return nil, fmt.Errorf("no widget state data in rendered page")
	}
	return &platform.Result{Hits: hits, Strategy: h.Name()}, nil
}

func (h *HeadlessStrategy) openPage(ctx context.Context, pageURL string) (*rod.Page, func(), error) {
	l := launcher.New().Headless(true).Logger(io.Discard)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		browser.Close()
		l.Cleanup()
		return nil, nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080}); err != nil {
		browser.Close()
		l.Cleanup()
		return nil, nil, fmt.Errorf("set viewport: %w", err)
	}

	cleanup := func() {
		page.Close()
		browser.Close()
		l.Cleanup()
	}
	return page, cleanup, nil
}
