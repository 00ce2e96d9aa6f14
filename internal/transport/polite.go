// Package transport implements the polite outbound HTTP layer used for
// marketplace search, detail and hint traffic.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
)

// DefaultUserAgent identifies the catalog to marketplace servers.
const DefaultUserAgent = "kidkazz-catalog/1.0 (+https://github.com/lukman83/kidkazz-catalog)"

var ErrDisallowed = errors.New("blocked by robots.txt")

// PoliteTransport is an http.RoundTripper that applies, in order:
// RobotsCheck → RateLimiter → Delay → Send
type PoliteTransport struct {
	Base        http.RoundTripper
	Robots      *RobotsChecker
	Delay       *Delay
	RateLimiter *rate.Limiter
	UserAgent   string
	Logger      *slog.Logger
}

func (t *PoliteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ua := t.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", ua)
	}

	if t.Robots != nil {
		allowed, err := t.Robots.IsAllowed(req.Context(), ua, req.URL.String())
		if err == nil && !allowed {
			if t.Logger != nil {
				t.Logger.Debug("request disallowed by robots.txt", logging.String("url", req.URL.String()))
			}
			return nil, fmt.Errorf("%s: %w", req.URL.Path, ErrDisallowed)
		}
	}

	if t.RateLimiter != nil {
		if err := t.RateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if t.Delay != nil {
		if err := t.Delay.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("delay: %w", err)
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Options configures New.
type Options struct {
	RespectRobots bool
	DelayProfile  DelayProfile
	RatePerSecond float64
	RateBurst     int
	UserAgent     string
	Logger        *slog.Logger
}

// New builds a PoliteTransport over base. robotsClient fetches robots.txt
// files and must not itself go through the returned transport.
func New(base http.RoundTripper, robotsClient *http.Client, opts Options) *PoliteTransport {
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &PoliteTransport{
		Base:        base,
		Robots:      NewRobotsChecker(robotsClient, opts.RespectRobots),
		Delay:       NewDelay(opts.DelayProfile),
		RateLimiter: limiter,
		UserAgent:   opts.UserAgent,
		Logger:      logging.NewComponentLogger(opts.Logger, "transport"),
	}
}
