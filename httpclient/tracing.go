package httpclient

import (
	"context"
	"fmt"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ Middleware                 = (*tracingMiddleware)(nil)
	_ propagation.TextMapCarrier = headerCarrier{}
)

// SpanNameFormatter names the client span of a request.
type SpanNameFormatter func(req *Request) string

// Filter reports whether a request should be traced.
type Filter func(req *Request) bool

// DefaultSpanName returns "HTTP {method}" followed by the operation name
// when there is one, e.g. "HTTP GET GetProduct".
func DefaultSpanName(req *Request) string {
	if req.Operation == "" {
		return "HTTP " + req.Method
	}
	return "HTTP " + req.Method + " " + req.Operation
}

// tracingMiddleware opens a client span around the rest of the chain,
// injects the trace context into the request headers and records the
// OpenTelemetry request metrics.
type tracingMiddleware struct {
	tracer       trace.Tracer
	propagator   propagation.TextMapPropagator
	metrics      *metrics
	baseAttrs    []attribute.KeyValue
	spanName     SpanNameFormatter
	filters      []Filter
	networkTrace bool
}

func (m *tracingMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	for _, f := range m.filters {
		if !f(req) {
			return next(ctx, req)
		}
	}

	start := time.Now()
	target := m.parseTarget(req)

	ctx, span := m.tracer.Start(ctx, m.spanName(req),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(m.requestAttributes(req, target)...),
	)
	defer span.End()

	m.propagator.Inject(ctx, headerCarrier{h: &req.Header})

	m.metrics.recordActiveRequest(ctx, 1, m.baseAttrs)
	defer m.metrics.recordActiveRequest(ctx, -1, m.baseAttrs)

	var nt *networkTrace
	if m.networkTrace {
		nt = &networkTrace{}
		ctx = httptrace.WithClientTrace(ctx, nt.clientTrace())
	}

	resp, err := next(ctx, req)
	duration := time.Since(start)

	if nt != nil {
		nt.addEvents(span)
		m.metrics.recordNetworkTiming(ctx, nt, m.baseAttrs)
	}

	attrs := m.metricAttributes(req, target)

	if err != nil {
		errorType := classifyError(err)
		setSpanError(span, err, errorType)
		m.metrics.recordError(ctx, errorType, m.baseAttrs)
		m.metrics.recordRequestDuration(ctx, duration,
			append(attrs, attribute.String("error.type", errorType)))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode()),
		attribute.Int("http.response.body.size", len(resp.Body())),
	)
	attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode()))

	if resp.StatusCode() >= 400 {
		errorType := errorTypeFromStatusCode(resp.StatusCode())
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode()))
		span.SetAttributes(attribute.String("error.type", errorType))
		attrs = append(attrs, attribute.String("error.type", errorType))
	}

	m.metrics.recordResponseBodySize(ctx, int64(len(resp.Body())), m.baseAttrs)
	m.metrics.recordRequestDuration(ctx, duration, attrs)
	return resp, nil
}

// parseTarget returns the parsed request URL, or nil when the resource
// cannot be rendered. The terminal reports that error.
func (m *tracingMiddleware) parseTarget(req *Request) *url.URL {
	raw, err := req.URL()
	if err != nil {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}

func (m *tracingMiddleware) requestAttributes(req *Request, target *url.URL) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m.baseAttrs)+7)
	attrs = append(attrs, m.baseAttrs...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if req.Operation != "" {
		attrs = append(attrs, attribute.String("restkit.operation", req.Operation))
	}
	if target != nil {
		attrs = append(attrs,
			attribute.String("url.full", target.Redacted()),
			attribute.String("url.scheme", target.Scheme),
		)
		attrs = append(attrs, serverAttributes(target)...)
	}
	if req.UserAgent != "" {
		attrs = append(attrs, attribute.String("user_agent.original", req.UserAgent))
	}
	return attrs
}

func (m *tracingMiddleware) metricAttributes(req *Request, target *url.URL) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m.baseAttrs)+5)
	attrs = append(attrs, m.baseAttrs...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))
	if target != nil {
		attrs = append(attrs, serverAttributes(target)...)
	}
	return attrs
}

func serverAttributes(u *url.URL) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if host := u.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}

	if p, err := strconv.Atoi(u.Port()); err == nil {
		return append(attrs, attribute.Int("server.port", p))
	}
	switch u.Scheme {
	case "http":
		attrs = append(attrs, attribute.Int("server.port", 80))
	case "https":
		attrs = append(attrs, attribute.Int("server.port", 443))
	}
	return attrs
}

// headerCarrier adapts Header to propagation.TextMapCarrier.
type headerCarrier struct {
	h *Header
}

func (c headerCarrier) Get(key string) string { return c.h.Get(key) }

func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, c.h.Len())
	c.h.Each(func(name, _ string) {
		keys = append(keys, name)
	})
	return keys
}
