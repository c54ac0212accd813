package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ Middleware = (*retryMiddleware)(nil)

// retryMiddleware repeats the rest of the chain while the classifier
// reports a transient failure.
type retryMiddleware struct {
	cfg        RetryConfig
	classifier RetryClassifier
	newBackOff func() backoff.BackOff
	metrics    *metrics
	attrs      []attribute.KeyValue
}

// RetryMiddleware retries the rest of the chain with exponential backoff.
// A nil classifier means DefaultClassifier.
//
// When retries run out on a retryable status, the last response is
// returned without an error so it can still be dispatched with On.
func RetryMiddleware(cfg RetryConfig, classifier RetryClassifier) Middleware {
	return newRetryMiddleware(cfg, classifier, nil, nil, nil)
}

func newRetryMiddleware(
	cfg RetryConfig,
	classifier RetryClassifier,
	newBackOff func() backoff.BackOff,
	m *metrics,
	attrs []attribute.KeyValue,
) *retryMiddleware {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return ExponentialBackOffFromConfig(cfg) }
	}
	return &retryMiddleware{
		cfg:        cfg,
		classifier: classifier,
		newBackOff: newBackOff,
		metrics:    m,
		attrs:      attrs,
	}
}

// retryableStatusError marks a response the classifier wants retried.
// It wraps a *backoff.RetryAfterError when the server asked for a delay.
type retryableStatusError struct {
	statusCode int
	retryAfter error
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("httpclient: retryable status %d", e.statusCode)
}

func (e *retryableStatusError) Unwrap() error { return e.retryAfter }

func (m *retryMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	if !m.cfg.IsEnabled() || !isReplayable(req.Body) {
		return next(ctx, req)
	}

	span := trace.SpanFromContext(ctx)
	attempt := 0

	opts := []backoff.RetryOption{
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithMaxTries(m.cfg.MaxRetries + 1),
		backoff.WithMaxElapsedTime(m.cfg.MaxElapsedTime),
		backoff.WithNotify(func(err error, delay time.Duration) {
			attempt++
			recordRetryEvent(span, attempt, err, delay)
			m.metrics.recordRetryAttempt(ctx, attempt, m.attrs)
		}),
	}

	var last *Response
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		resp, err := next(ctx, req.Clone())
		if !m.classifier(resp, err) {
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			return resp, nil
		}
		if err != nil {
			return nil, err
		}
		last = resp
		return nil, &retryableStatusError{
			statusCode: resp.StatusCode(),
			retryAfter: retryAfterDelay(resp),
		}
	}, opts...)

	if attempt > 0 && span.IsRecording() {
		span.SetAttributes(
			attribute.Int("http.retry_count", attempt),
			attribute.Bool("http.retry_success", err == nil),
		)
	}

	if err == nil {
		return resp, nil
	}

	// The last attempt returns a permanent error still wrapped.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	if errors.Is(err, ErrCanceled) {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &CanceledError{Stage: "retry", Err: ctxErr}
	}

	if attempt > 0 {
		m.metrics.recordRetryExhausted(ctx, m.attrs)
	}

	var statusErr *retryableStatusError
	if errors.As(err, &statusErr) && last != nil {
		return last, nil
	}
	return nil, err
}

// retryAfterDelay reads Retry-After in its seconds form from 429 and 503
// responses.
func retryAfterDelay(resp *Response) error {
	if resp.StatusCode() != http.StatusTooManyRequests &&
		resp.StatusCode() != http.StatusServiceUnavailable {
		return nil
	}
	secs, err := strconv.Atoi(resp.Header().Get("Retry-After"))
	if err != nil || secs < 0 {
		return nil
	}
	return backoff.RetryAfter(secs)
}

func recordRetryEvent(span trace.Span, attempt int, err error, delay time.Duration) {
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", delay.Milliseconds()),
	}

	reason := "unknown"
	var statusErr *retryableStatusError
	switch {
	case errors.As(err, &statusErr):
		reason = "status_" + strconv.Itoa(statusErr.statusCode)
	case isRetryableNetworkError(err):
		reason = "network_error"
	}
	attrs = append(attrs, attribute.String("retry.reason", reason))

	span.AddEvent("http.retry", trace.WithAttributes(attrs...))
}
