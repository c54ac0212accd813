package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the client-side rate limit rejects a
// request.
var ErrRateLimited = errors.New("httpclient: rate limit exceeded")

var _ Middleware = (*RateLimiter)(nil)

// RateLimitConfig configures client-side rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables the
	// limit.
	RequestsPerSecond float64

	// Burst allows short spikes above the rate. Minimum 1.
	Burst int

	// WaitOnLimit makes requests wait for a token within their context
	// deadline. Otherwise they fail at once with ErrRateLimited.
	WaitOnLimit bool

	// Operations holds stricter limits for single operations, keyed by the
	// name given to Client.Request. They apply on top of the client limit.
	Operations map[string]RateLimitConfig
}

// DefaultRateLimitConfig allows 100 requests per second with a burst of 10
// and waits for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// RateLimitBehavior selects what happens when no token is available.
type RateLimitBehavior int

const (
	// RateLimitWait waits for a token.
	RateLimitWait RateLimitBehavior = iota
	// RateLimitFailFast returns ErrRateLimited.
	RateLimitFailFast
)

// NewRateLimitConfigWithBehavior builds a RateLimitConfig from a behavior.
func NewRateLimitConfigWithBehavior(rps float64, burst int, behavior RateLimitBehavior) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
		WaitOnLimit:       behavior == RateLimitWait,
	}
}

// RateLimiterStats is a snapshot of a token bucket.
type RateLimiterStats struct {
	Limit           float64
	Burst           int
	TokensAvailable float64
}

type bucket struct {
	limiter *rate.Limiter
	wait    bool
}

func newBucket(cfg RateLimitConfig) *bucket {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &bucket{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

func (b *bucket) take(ctx context.Context) error {
	if b == nil {
		return nil
	}
	if !b.wait {
		if !b.limiter.Allow() {
			return ErrRateLimited
		}
		return nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &CanceledError{Stage: "rate limit", Err: ctxErr}
		}
		// The wait would outlast the context deadline.
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return nil
}

// RateLimiter is a middleware that holds requests to a token bucket,
// plus one bucket per configured operation. It is safe for concurrent use.
type RateLimiter struct {
	client     *bucket
	operations map[string]*bucket
}

// NewRateLimiter builds the buckets described by cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	l := &RateLimiter{
		client:     newBucket(cfg),
		operations: make(map[string]*bucket, len(cfg.Operations)),
	}
	for op, opCfg := range cfg.Operations {
		if b := newBucket(opCfg); b != nil {
			l.operations[op] = b
		}
	}
	return l
}

// Invoke implements Middleware.
func (l *RateLimiter) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	if err := l.operations[req.Operation].take(ctx); err != nil {
		return nil, err
	}
	if err := l.client.take(ctx); err != nil {
		return nil, err
	}
	return next(ctx, req)
}

// Stats returns the state of the client-wide bucket. It is zero when the
// client has no overall limit.
func (l *RateLimiter) Stats() RateLimiterStats {
	if l.client == nil {
		return RateLimiterStats{}
	}
	return RateLimiterStats{
		Limit:           float64(l.client.limiter.Limit()),
		Burst:           l.client.limiter.Burst(),
		TokensAvailable: l.client.limiter.Tokens(),
	}
}

// Reserve returns how long a request would wait for a token right now,
// or -1 when the bucket can never satisfy it. No token is taken.
func (l *RateLimiter) Reserve() time.Duration {
	if l.client == nil {
		return 0
	}
	lim := l.client.limiter
	if lim.Limit() == rate.Inf {
		return 0
	}
	tokens := lim.TokensAt(time.Now())
	if tokens >= 1 {
		return 0
	}
	if lim.Burst() < 1 || lim.Limit() <= 0 {
		return -1
	}
	missing := 1 - tokens
	return time.Duration(missing / float64(lim.Limit()) * float64(time.Second))
}
