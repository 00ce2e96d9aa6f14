package transport

import (
	"context"
	"math/rand/v2"
	"time"
)

// DelayProfile defines a named delay configuration.
type DelayProfile string

const (
	ProfileCautious   DelayProfile = "cautious"
	ProfileNormal     DelayProfile = "normal"
	ProfileAggressive DelayProfile = "aggressive"
	ProfileNone       DelayProfile = "none"
)

// Delay spaces out consecutive API requests with random jitter.
type Delay struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewDelay creates a delay generator for the given profile.
func NewDelay(profile DelayProfile) *Delay {
	switch profile {
	case ProfileCautious:
		return &Delay{MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	case ProfileAggressive:
		return &Delay{MinDelay: 200 * time.Millisecond, MaxDelay: 800 * time.Millisecond}
	case ProfileNone:
		return &Delay{}
	default: // normal
		return &Delay{MinDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
	}
}

// Valid reports whether p names a known profile.
func (p DelayProfile) Valid() bool {
	switch p {
	case ProfileCautious, ProfileNormal, ProfileAggressive, ProfileNone:
		return true
	}
	return false
}

// Wait sleeps for a random duration within the configured range.
func (d *Delay) Wait(ctx context.Context) error {
	wait := d.RequestDelay()
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestDelay returns a random delay for API/page requests.
func (d *Delay) RequestDelay() time.Duration {
	return randomBetween(d.MinDelay, d.MaxDelay)
}

func randomBetween(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
