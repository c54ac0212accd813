package httpclient

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kroma-labs/restkit/resource"
)

// Client issues requests against one root address. Build requests with
// Request:
//
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("billing"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := client.Request("GetInvoice").
//	    Value("id", 42).
//	    Get(ctx, "invoices/:id")
//
// A Client is immutable after New and safe for concurrent use.
type Client struct {
	root      resource.Resource
	merger    *resource.Merger
	settings  *TransmissionSettings
	runner    *Runner
	limiter   *RateLimiter
	transport http.RoundTripper

	header          Header
	userAgent       string
	arrayFormatter  resource.ArrayFormatter
	followRedirects bool
	maxRedirects    int
	enableTrace     bool
}

// New creates a Client. It fails with ErrInvalidRoot when the base URL is
// missing or not an http(s) address, and with ErrNoSerializers when
// WithSerializers leaves nothing to encode bodies with.
//
// The chain is assembled once, outermost first: tracing, Prometheus,
// debug logging, WithBeforeRequest/WithAfterRequest hooks, WithMiddleware,
// cache, coalescing, rate limit, circuit breaker, retry, hedging, chaos.
// Each built-in stage is present only when its option is set, except
// tracing, which is on unless WithTracing(false).
func New(opts ...Option) (*Client, error) {
	cfg := newConfig(opts...)

	root, err := parseRoot(cfg.baseURL)
	if err != nil {
		return nil, err
	}

	settings := DefaultTransmissionSettings()
	if cfg.serializersSet {
		if settings, err = NewTransmissionSettings(cfg.serializers...); err != nil {
			return nil, err
		}
	}

	c := &Client{
		root: root,
		merger: resource.NewMerger(
			resource.WithNamingConvention(cfg.namingConvention),
			resource.WithAutoParameters(cfg.autoParameters),
		),
		settings:        settings,
		header:          cfg.defaultHeaders.Clone(),
		userAgent:       cfg.userAgent,
		arrayFormatter:  cfg.arrayFormatter,
		followRedirects: cfg.followRedirects,
		maxRedirects:    cfg.maxRedirects,
		enableTrace:     cfg.enableTrace,
	}

	middlewares := c.buildChain(cfg)
	c.transport = cfg.buildTransport()
	terminal := newSender(c.transport, cfg.httpConfig.Timeout, settings)
	c.runner = NewRunner(terminal.send, settings, cfg.auth, middlewares...)
	return c, nil
}

func (c *Client) buildChain(cfg *internalConfig) []Middleware {
	var (
		list  []Middleware
		m     *metrics
		attrs = cfg.baseAttributes()
	)

	if cfg.tracing {
		// Instruments that fail to register are skipped; tracing still works.
		m, _ = newMetrics(cfg.meterProvider.Meter(scope))
		list = append(list, &tracingMiddleware{
			tracer:       cfg.tracerProvider.Tracer(scope),
			propagator:   cfg.propagators,
			metrics:      m,
			baseAttrs:    attrs,
			spanName:     cfg.spanNameFormatter,
			filters:      cfg.filters,
			networkTrace: cfg.networkTrace,
		})
	}
	if cfg.prometheus != nil {
		list = append(list, cfg.prometheus)
	}
	if cfg.debug {
		list = append(list, &loggingMiddleware{
			logger:   cfg.logger,
			curl:     cfg.generateCurl,
			settings: c.settings,
		})
	}
	if !cfg.interceptors.Empty() {
		list = append(list, cfg.interceptors)
	}
	list = append(list, cfg.middlewares...)

	if cfg.cache != nil {
		list = append(list, newCacheMiddleware(*cfg.cache, cfg.logger, m, attrs))
	}
	if cfg.coalesceEnabled {
		list = append(list, CoalesceMiddleware(cfg.coalesce...))
	}
	if cfg.rateLimit != nil {
		c.limiter = NewRateLimiter(*cfg.rateLimit)
		list = append(list, c.limiter)
	}
	if cfg.breaker != nil {
		bc := *cfg.breaker
		if bc.Name == "" {
			bc.Name = cfg.serviceName
		}
		list = append(list, newBreakerMiddleware(bc, m))
	}
	if cfg.retry.IsEnabled() {
		list = append(list, newRetryMiddleware(cfg.retry, cfg.retryClassifier, cfg.retryBackOff, m, attrs))
	}
	if cfg.hedge != nil && cfg.hedge.Enabled() {
		list = append(list, HedgeMiddleware(*cfg.hedge))
	}
	if cfg.chaos != nil {
		list = append(list, ChaosMiddleware(*cfg.chaos))
	}
	return list
}

// parseRoot checks that root is an absolute http or https address. The
// host may hold segment tokens, so it is not parsed as a URL here.
func parseRoot(root string) (resource.Resource, error) {
	lower := strings.ToLower(root)
	rest, ok := strings.CutPrefix(lower, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(lower, "http://")
	}
	if !ok || rest == "" || strings.HasPrefix(rest, "/") {
		return resource.Resource{}, fmt.Errorf("%w: %q", ErrInvalidRoot, root)
	}
	return resource.New(root), nil
}

// Request starts a request for the named operation. The name shows up in
// span names, logs and metric labels.
func (c *Client) Request(operation string) *RequestBuilder {
	return &RequestBuilder{
		client:          c,
		operation:       operation,
		header:          c.header.Clone(),
		userAgent:       c.userAgent,
		arrayFormatter:  c.arrayFormatter,
		followRedirects: c.followRedirects,
		maxRedirects:    c.maxRedirects,
		trace:           c.enableTrace,
	}
}

// Root returns the root resource.
func (c *Client) Root() resource.Resource {
	return c.root
}

// Merger returns the merger requests are built with.
func (c *Client) Merger() *resource.Merger {
	return c.merger
}

// Settings returns the serializers of the client.
func (c *Client) Settings() *TransmissionSettings {
	return c.settings
}

// Runner returns the runner that executes built requests. Use it to send a
// Request assembled by hand.
func (c *Client) Runner() *Runner {
	return c.runner
}

// RateLimiterStats reports the client-wide token bucket. ok is false when
// WithRateLimit was not used.
func (c *Client) RateLimiterStats() (stats RateLimiterStats, ok bool) {
	if c.limiter == nil {
		return RateLimiterStats{}, false
	}
	return c.limiter.Stats(), true
}
