package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"

	"github.com/lukman83/kidkazz-catalog/internal/cache"
	"github.com/lukman83/kidkazz-catalog/internal/httputil"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/models"
)

var (
	// ErrNoImage means no candidate produced a usable image.
	ErrNoImage = errors.New("no usable image")
	// ErrTransient marks failures worth another attempt.
	ErrTransient = errors.New("transient failure")
)

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// AcquirerOptions tunes downloads. Zero values take the defaults.
type AcquirerOptions struct {
	TopN          int           // validated candidates tried, default 3
	Timeout       time.Duration // per download, default 10s
	Attempts      int           // per candidate, default 3
	Backoff       time.Duration // linear, default 1s
	MaxConcurrent int           // downloads in flight, default 5
	MaxBytes      int64         // default 20 MiB
	CacheTTL      time.Duration // default 2h
	Logger        *slog.Logger
}

// Acquirer downloads validated candidates and verifies that they decode.
type Acquirer struct {
	client *http.Client
	cache  *cache.Cache
	sem    *semaphore.Weighted
	opts   AcquirerOptions
	logger *slog.Logger
}

func NewAcquirer(client *http.Client, c *cache.Cache, opts AcquirerOptions) *Acquirer {
	if client == nil {
		client = httputil.NewCDNClient(0)
	}
	if opts.TopN <= 0 {
		opts.TopN = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Hour
	}
	return &Acquirer{
		client: client,
		cache:  c,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "acquirer"),
	}
}

func imageKey(platform, productID string) string {
	return "image:" + platform + ":" + productID
}

// Acquire returns the first of the top validated candidates that downloads
// and decodes. Only a success is cached. The error wraps ErrTransient when
// some candidate failed in a way that may clear up.
func (a *Acquirer) Acquire(ctx context.Context, platformName, productID string, validated []models.ValidationResult) (models.DownloadedImage, error) {
	return cache.GetOrLoad(ctx, a.cache, imageKey(platformName, productID), a.opts.CacheTTL,
		func(ctx context.Context) (models.DownloadedImage, error) {
			return a.acquire(ctx, validated)
		})
}

func (a *Acquirer) acquire(ctx context.Context, validated []models.ValidationResult) (models.DownloadedImage, error) {
	transient := false
	var lastErr error
	for _, v := range validated[:min(a.opts.TopN, len(validated))] {
		img, err := a.downloadWithRetry(ctx, v)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return models.DownloadedImage{}, ctx.Err()
		}
		if IsTransient(err) {
			transient = true
		}
		lastErr = err
		a.logger.Debug("candidate download failed", logging.String("url", v.URL), logging.Error(err))
	}
	if transient {
		return models.DownloadedImage{}, fmt.Errorf("%w: %w: %w", ErrNoImage, ErrTransient, lastErr)
	}
	if lastErr != nil {
		return models.DownloadedImage{}, fmt.Errorf("%w: %w", ErrNoImage, lastErr)
	}
	return models.DownloadedImage{}, ErrNoImage
}

func (a *Acquirer) downloadWithRetry(ctx context.Context, v models.ValidationResult) (models.DownloadedImage, error) {
	var lastErr error
	for attempt := 1; attempt <= a.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, time.Duration(attempt-1)*a.opts.Backoff); err != nil {
				return models.DownloadedImage{}, err
			}
		}
		img, err := a.download(ctx, v)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			return models.DownloadedImage{}, err
		}
	}
	return models.DownloadedImage{}, lastErr
}

func (a *Acquirer) download(ctx context.Context, v models.ValidationResult) (models.DownloadedImage, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return models.DownloadedImage{}, err
	}
	defer a.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return models.DownloadedImage{}, fmt.Errorf("create request: %w", err)
	}
	for k, vals := range httputil.ImageHeaders() {
		req.Header[k] = vals
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return models.DownloadedImage{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	// Only a 404 is definitive; any other non-200 status is retried.
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return models.DownloadedImage{}, &httputil.StatusError{Code: resp.StatusCode, URL: v.URL}
	default:
		return models.DownloadedImage{}, fmt.Errorf("%w: %w", ErrTransient, &httputil.StatusError{Code: resp.StatusCode, URL: v.URL})
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return models.DownloadedImage{}, fmt.Errorf("unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.opts.MaxBytes))
	if err != nil {
		return models.DownloadedImage{}, fmt.Errorf("%w: read body: %w", ErrTransient, err)
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return models.DownloadedImage{}, fmt.Errorf("decode image: %w", err)
	}
	return models.DownloadedImage{
		URL:         v.URL,
		ContentType: contentType,
		SizeClass:   v.SizeClass,
		Bytes:       data,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
