package httpclient

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ Middleware = (*PrometheusMetrics)(nil)

// PrometheusMetrics is a middleware that exports request counters and
// latencies as Prometheus collectors. Labels are the operation name, the
// HTTP method and the status code, or "error" when no response arrived.
type PrometheusMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewPrometheusMetrics registers the collectors with reg under namespace.
// A nil reg means prometheus.DefaultRegisterer. Registering twice with the
// same namespace reuses the collectors already registered.
//
//	pm, err := httpclient.NewPrometheusMetrics(nil, "catalog")
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithPrometheus(pm),
//	)
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http_client",
		Name:      "requests_total",
		Help:      "Number of HTTP client requests by operation, method and status code.",
	}, []string{"operation", "method", "code"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http_client",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP client requests.",
		Buckets:   latencyBuckets,
	}, []string{"operation", "method", "code"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http_client",
		Name:      "in_flight_requests",
		Help:      "Number of HTTP client requests in flight.",
	})

	p := &PrometheusMetrics{}
	var err error
	if p.requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if p.duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if p.inFlight, err = register(reg, inFlight); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// Invoke implements Middleware.
func (p *PrometheusMetrics) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	p.inFlight.Inc()
	defer p.inFlight.Dec()

	start := time.Now()
	resp, err := next(ctx, req)

	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode())
	}
	p.requests.WithLabelValues(req.Operation, req.Method, code).Inc()
	p.duration.WithLabelValues(req.Operation, req.Method, code).Observe(time.Since(start).Seconds())
	return resp, err
}
