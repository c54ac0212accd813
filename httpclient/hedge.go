package httpclient

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ Middleware = (*hedgeMiddleware)(nil)

// HedgeConfig configures hedged requests: when an attempt has not answered
// within Delay, another identical attempt starts, and the first response
// wins. Only idempotent methods with replayable bodies are hedged.
//
//	httpclient.WithHedging(httpclient.HedgeConfig{
//	    Delay:     50 * time.Millisecond,
//	    MaxHedges: 1,
//	})
type HedgeConfig struct {
	// Delay before each extra attempt. With a Tracker it is the fallback
	// until enough samples exist.
	Delay time.Duration

	// MaxHedges is the number of extra attempts. With 1, at most two
	// attempts are in flight.
	MaxHedges int

	// Tracker makes the delay adaptive: the Percentile latency of the
	// operation is used once known.
	Tracker *LatencyTracker

	// Percentile for the adaptive delay. Default 0.95.
	Percentile float64
}

// AdaptiveHedgeConfig hedges at the P95 latency of each operation, with a
// 50ms fallback and one extra attempt.
func AdaptiveHedgeConfig() HedgeConfig {
	return HedgeConfig{
		Delay:      50 * time.Millisecond,
		MaxHedges:  1,
		Tracker:    NewLatencyTracker(100, 10),
		Percentile: 0.95,
	}
}

// Enabled reports whether the config hedges at all.
func (c HedgeConfig) Enabled() bool {
	return c.Delay > 0 && c.MaxHedges > 0
}

func (c HedgeConfig) delay(operation string) time.Duration {
	if c.Tracker != nil {
		p := c.Percentile
		if p <= 0 {
			p = 0.95
		}
		if d, ok := c.Tracker.Percentile(operation, p); ok && d > 0 {
			return d
		}
	}
	return c.Delay
}

type hedgeMiddleware struct {
	cfg HedgeConfig
}

// HedgeMiddleware sends extra attempts for slow idempotent calls.
func HedgeMiddleware(cfg HedgeConfig) Middleware {
	return &hedgeMiddleware{cfg: cfg}
}

type hedgeResult struct {
	resp *Response
	err  error
}

func (m *hedgeMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	if !m.cfg.Enabled() || !isIdempotent(req.Method) || !isReplayable(req.Body) {
		return next(ctx, req)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so losing attempts never block once the call returned.
	results := make(chan hedgeResult, m.cfg.MaxHedges+1)
	launched, inFlight := 0, 0
	launch := func() {
		launched++
		inFlight++
		if launched > 1 {
			trace.SpanFromContext(ctx).AddEvent("http.hedge",
				trace.WithAttributes(attribute.String("http.hedge.attempt", strconv.Itoa(launched))))
		}
		attempt := req.Clone()
		go func() {
			start := time.Now()
			resp, err := next(ctx, attempt)
			if err == nil && m.cfg.Tracker != nil {
				m.cfg.Tracker.Record(req.Operation, time.Since(start))
			}
			results <- hedgeResult{resp: resp, err: err}
		}()
	}

	delay := m.cfg.delay(req.Operation)
	launch()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if launched <= m.cfg.MaxHedges {
				launch()
				timer.Reset(delay)
			}
		case r := <-results:
			inFlight--
			if r.err == nil || parent.Err() != nil {
				return r.resp, r.err
			}
			if inFlight > 0 {
				continue
			}
			if launched > m.cfg.MaxHedges {
				return nil, r.err
			}
			// Every attempt failed early; spend the next hedge now.
			launch()
			timer.Reset(delay)
		}
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}
