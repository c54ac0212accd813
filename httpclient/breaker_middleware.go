package httpclient

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
)

var _ Middleware = (*breakerMiddleware)(nil)

// circuitBreaker is satisfied by both gobreaker.CircuitBreaker and
// gobreaker.DistributedCircuitBreaker.
type circuitBreaker interface {
	Execute(req func() (*Response, error)) (*Response, error)
}

// errSyntheticFailure tells the breaker that a response it received is a
// failure. The response itself is still returned to the caller.
var errSyntheticFailure = errors.New("httpclient: synthetic breaker failure")

// passThroughError carries an error the classifier did not count as a
// failure, so the breaker records it as a success.
type passThroughError struct {
	err error
}

func (e *passThroughError) Error() string { return e.err.Error() }
func (e *passThroughError) Unwrap() error { return e.err }

type breakerMiddleware struct {
	breaker    circuitBreaker
	classifier BreakerClassifier
	name       string
	metrics    *metrics
}

// BreakerMiddleware rejects calls with ErrCircuitOpen while the downstream
// service keeps failing.
func BreakerMiddleware(cfg BreakerConfig) Middleware {
	return newBreakerMiddleware(cfg, nil)
}

func newBreakerMiddleware(cfg BreakerConfig, m *metrics) *breakerMiddleware {
	name := cfg.Name
	if name == "" {
		name = "restkit"
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.recordBreakerState(context.Background(), name, int64(to))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			var pass *passThroughError
			return err == nil || errors.As(err, &pass)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, ErrCanceled)
		},
	}

	var cb circuitBreaker = gobreaker.NewCircuitBreaker[*Response](st)
	if cfg.Store != nil {
		// A local breaker still protects this instance if the shared one
		// cannot be created.
		if dcb, err := gobreaker.NewDistributedCircuitBreaker[*Response](cfg.Store, st); err == nil {
			cb = dcb
		}
	}

	return &breakerMiddleware{
		breaker:    cb,
		classifier: classifier,
		name:       name,
		metrics:    m,
	}
}

func (b *breakerMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	resp, err := b.breaker.Execute(func() (*Response, error) {
		resp, err := next(ctx, req)
		failed := b.classifier(resp, err)
		switch {
		case failed && err == nil:
			return resp, errSyntheticFailure
		case failed, err == nil, errors.Is(err, ErrCanceled):
			return resp, err
		}
		return nil, &passThroughError{err: err}
	})

	switch {
	case err == nil:
		b.metrics.recordBreakerRequest(ctx, b.name, "success")
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.metrics.recordBreakerRequest(ctx, b.name, "rejected")
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	case errors.Is(err, errSyntheticFailure):
		b.metrics.recordBreakerRequest(ctx, b.name, "failure")
		return resp, nil
	}

	var pass *passThroughError
	if errors.As(err, &pass) {
		b.metrics.recordBreakerRequest(ctx, b.name, "success")
		return nil, pass.err
	}
	b.metrics.recordBreakerRequest(ctx, b.name, "failure")
	return nil, err
}
