package httpclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

var _ Middleware = (*chaosMiddleware)(nil)

// ErrChaosInjected is the cause of network errors injected by the chaos
// middleware.
var ErrChaosInjected = errors.New("chaos: simulated network error")

// ChaosConfig injects faults to exercise retries, breakers and timeouts
// outside production.
//
//	httpclient.WithChaos(httpclient.ChaosConfig{
//	    Latency:   200 * time.Millisecond,
//	    ErrorRate: 0.1,
//	})
type ChaosConfig struct {
	// Latency is added to every request.
	Latency time.Duration

	// LatencyJitter adds a random delay in [0, LatencyJitter).
	LatencyJitter time.Duration

	// ErrorRate is the probability of failing with a dial error wrapping
	// ErrChaosInjected.
	ErrorRate float64

	// TimeoutRate is the probability of hanging until the context is done.
	TimeoutRate float64
}

// Delay returns the latency to add to one request.
func (c ChaosConfig) Delay() time.Duration {
	d := c.Latency
	if c.LatencyJitter > 0 {
		d += rand.N(c.LatencyJitter) //nolint:gosec
	}
	return d
}

func (c ChaosConfig) roll(rate float64) bool {
	return rate > 0 && rand.Float64() < rate //nolint:gosec
}

type chaosMiddleware struct {
	cfg ChaosConfig
}

// ChaosMiddleware injects the faults of cfg before the rest of the chain.
func ChaosMiddleware(cfg ChaosConfig) Middleware {
	return &chaosMiddleware{cfg: cfg}
}

func (m *chaosMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	if m.cfg.roll(m.cfg.TimeoutRate) {
		<-ctx.Done()
		return nil, &CanceledError{Stage: "chaos", Err: ctx.Err()}
	}
	if m.cfg.roll(m.cfg.ErrorRate) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected}
	}

	if d := m.cfg.Delay(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, &CanceledError{Stage: "chaos", Err: ctx.Err()}
		}
	}
	return next(ctx, req)
}
