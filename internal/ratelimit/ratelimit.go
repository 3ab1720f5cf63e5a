// Package ratelimit throttles credential endpoints per client key.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the limiter backend could not be reached.
var ErrUnavailable = errors.New("ratelimit: backend unavailable")

type Config struct {
	// Requests allowed per Window.
	Requests int
	Window   time.Duration
	// Burst is only honoured by the in-memory token bucket.
	Burst int
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
