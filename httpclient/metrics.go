package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the OpenTelemetry instruments of a client. A nil *metrics
// records nothing.
type metrics struct {
	requestDuration  metric.Float64Histogram
	responseBodySize metric.Int64Histogram
	activeRequests   metric.Int64UpDownCounter
	requestErrors    metric.Int64Counter

	dnsDuration        metric.Float64Histogram
	connectionDuration metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	ttfb               metric.Float64Histogram

	retryAttempts  metric.Int64Counter
	retryExhausted metric.Int64Counter
	cacheLookups   metric.Int64Counter

	breakerRequests metric.Int64Counter
	breakerState    metric.Int64Gauge
}

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10}
	networkBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	sizeBuckets    = []float64{0, 100, 1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024}
)

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	b := instrumentBuilder{meter: meter}

	m.requestDuration = b.seconds("http.client.request.duration",
		"Duration of HTTP client requests", latencyBuckets)
	m.responseBodySize = b.bytes("http.client.response.body.size",
		"Size of HTTP client response bodies")
	m.activeRequests = b.upDown("http.client.active_requests",
		"Number of in-flight HTTP client requests", "{request}")
	m.requestErrors = b.counter("http.client.request.error",
		"Number of HTTP client request errors", "{error}")

	m.dnsDuration = b.seconds("http.client.dns.duration", "DNS lookup duration", networkBuckets)
	m.connectionDuration = b.seconds("http.client.connection.duration",
		"Time to establish a connection", networkBuckets)
	m.tlsDuration = b.seconds("http.client.tls.duration", "TLS handshake duration", networkBuckets)
	m.ttfb = b.seconds("http.client.ttfb", "Time to first response byte", latencyBuckets)

	m.retryAttempts = b.counter("http.client.retry.attempts",
		"Number of HTTP client retry attempts", "{attempt}")
	m.retryExhausted = b.counter("http.client.retry.exhausted",
		"Number of requests that exhausted all retries", "{request}")
	m.cacheLookups = b.counter("http.client.cache.lookups",
		"Number of response cache lookups by result", "{lookup}")
	m.breakerRequests = b.counter("http.client.breaker.requests",
		"Number of requests seen by the circuit breaker by result", "{request}")
	m.breakerState = b.gauge("http.client.breaker.state",
		"Circuit breaker state: 0 closed, 1 half-open, 2 open", "{state}")

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// instrumentBuilder creates instruments and keeps the first error.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.keep(err)
	return h
}

func (b *instrumentBuilder) bytes(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	)
	b.keep(err)
	return h
}

func (b *instrumentBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.keep(err)
	return c
}

func (b *instrumentBuilder) upDown(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.keep(err)
	return c
}

func (b *instrumentBuilder) gauge(name, desc, unit string) metric.Int64Gauge {
	g, err := b.meter.Int64Gauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.keep(err)
	return g
}

func (b *instrumentBuilder) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (m *metrics) recordRequestDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequest(ctx context.Context, delta int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, delta, metric.WithAttributes(attrs...))
}

func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(
		append(attrs[:len(attrs):len(attrs)], attribute.String("error.type", errorType))...))
}

func (m *metrics) recordNetworkTiming(ctx context.Context, nt *networkTrace, attrs []attribute.KeyValue) {
	if m == nil || nt == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)

	if d, ok := nt.dnsDuration(); ok {
		m.dnsDuration.Record(ctx, d.Seconds(), opt)
	}
	if d, ok := nt.connectDuration(); ok {
		m.connectionDuration.Record(ctx, d.Seconds(), opt)
	}
	if d, ok := nt.tlsDuration(); ok {
		m.tlsDuration.Record(ctx, d.Seconds(), opt)
	}
	if d, ok := nt.serverDuration(); ok {
		m.ttfb.Record(ctx, d.Seconds(), opt)
	}
}

func (m *metrics) recordRetryAttempt(ctx context.Context, attempt int, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(
		append(attrs[:len(attrs):len(attrs)], attribute.Int("retry.attempt", attempt))...))
}

func (m *metrics) recordRetryExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordCacheLookup(ctx context.Context, hit bool, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		append(attrs[:len(attrs):len(attrs)], attribute.String("cache.result", result))...))
}

func (m *metrics) recordBreakerRequest(ctx context.Context, name, result string) {
	if m == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.result", result),
	))
}

func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}
