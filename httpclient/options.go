package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kroma-labs/restkit/resource"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// scope is the OpenTelemetry instrumentation scope.
const scope = "github.com/kroma-labs/restkit/httpclient"

// Config holds the settings of the underlying http.Transport and the
// overall request timeout. Start from a preset and change what you need:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 5 * time.Second
//	cfg.MaxIdleConnsPerHost = 50
//
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithConfig(cfg),
//	)
type Config struct {
	// Timeout bounds a whole call, body included. Zero means none.
	Timeout time.Duration

	// MaxIdleConns caps idle keep-alive connections over all hosts.
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle connections kept per host. This is the
	// setting that matters most when a client talks to a single API.
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps idle plus active connections per host. Zero
	// means unlimited.
	MaxConnsPerHost int

	// IdleConnTimeout closes pooled connections idle for that long. Keep
	// it below the server's own idle timeout.
	IdleConnTimeout time.Duration

	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is how long to wait for "100 Continue" when
	// the request sends Expect: 100-continue.
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout limits the wait for response headers once the
	// request is written. Zero leaves it to Timeout.
	ResponseHeaderTimeout time.Duration

	DialTimeout time.Duration
	KeepAlive   time.Duration

	// FallbackDelay is the RFC 6555 dual-stack delay. Negative disables
	// it.
	FallbackDelay time.Duration

	WriteBufferSize int
	ReadBufferSize  int

	// MaxResponseHeaderBytes limits response header size. Zero means the
	// net/http default.
	MaxResponseHeaderBytes int64

	DisableKeepAlives bool

	// DisableCompression stops the transport from asking for gzip.
	DisableCompression bool

	// ForceHTTP2 attempts HTTP/2 even with a custom dialer or TLS config.
	ForceHTTP2 bool
}

// DefaultConfig returns balanced settings for service to service calls:
// a 15s timeout and up to 20 idle connections per host.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,

		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,

		DisableCompression: true,
	}
}

// HighThroughputConfig keeps a large pool with no per-host connection cap,
// for gateways and batch jobs.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Second
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyConfig fails fast: short timeouts, quick dials and HTTP/2.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.MaxIdleConns = 50
	cfg.MaxIdleConnsPerHost = 25
	cfg.MaxConnsPerHost = 50
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ExpectContinueTimeout = 500 * time.Millisecond
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.FallbackDelay = 150 * time.Millisecond
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	cfg.ForceHTTP2 = true
	return cfg
}

// ConservativeConfig keeps a small pool and small buffers for constrained
// environments.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	cfg.IdleConnTimeout = 30 * time.Second
	cfg.WriteBufferSize = 4 * 1024
	cfg.ReadBufferSize = 4 * 1024
	return cfg
}

// internalConfig collects everything the options set. New turns it into
// the middleware chain and the terminal.
type internalConfig struct {
	httpConfig Config
	transport  http.RoundTripper

	baseURL          string
	serializers      []Serializer
	serializersSet   bool
	auth             Authenticator
	namingConvention resource.NamingConvention
	autoParameters   bool
	arrayFormatter   resource.ArrayFormatter

	userAgent       string
	defaultHeaders  Header
	followRedirects bool
	maxRedirects    int
	enableTrace     bool

	logger       zerolog.Logger
	loggerSet    bool
	debug        bool
	generateCurl bool

	interceptors *InterceptorChain
	middlewares  []Middleware

	tracing           bool
	serviceName       string
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	propagators       propagation.TextMapPropagator
	filters           []Filter
	spanNameFormatter SpanNameFormatter
	networkTrace      bool

	retry           RetryConfig
	retryClassifier RetryClassifier
	retryBackOff    func() backoff.BackOff
	breaker         *BreakerConfig
	rateLimit       *RateLimitConfig
	cache           *CacheConfig
	coalesce        []string
	coalesceEnabled bool
	prometheus      *PrometheusMetrics
	hedge           *HedgeConfig
	chaos           *ChaosConfig

	tlsConfig            *tls.Config
	proxyURL             *url.URL
	proxyFromEnvironment bool
}

func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:           DefaultConfig(),
		autoParameters:       true,
		followRedirects:      true,
		logger:               zerolog.Nop(),
		interceptors:         NewInterceptorChain(),
		tracing:              true,
		tracerProvider:       otel.GetTracerProvider(),
		meterProvider:        otel.GetMeterProvider(),
		networkTrace:         true,
		retry:                NoRetryConfig(),
		proxyFromEnvironment: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.propagators == nil {
		cfg.propagators = otel.GetTextMapPropagator()
	}
	if cfg.spanNameFormatter == nil {
		cfg.spanNameFormatter = DefaultSpanName
	}
	if cfg.debug && !cfg.loggerSet {
		cfg.logger = debugLogger
	}
	return cfg
}

func (cfg *internalConfig) buildTransport() http.RoundTripper {
	if cfg.transport != nil {
		return cfg.transport
	}
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}
	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           hc.MaxIdleConns,
		MaxIdleConnsPerHost:    hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:        hc.MaxConnsPerHost,
		IdleConnTimeout:        hc.IdleConnTimeout,
		TLSHandshakeTimeout:    hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout:  hc.ResponseHeaderTimeout,
		ExpectContinueTimeout:  hc.ExpectContinueTimeout,
		DisableKeepAlives:      hc.DisableKeepAlives,
		DisableCompression:     hc.DisableCompression,
		WriteBufferSize:        hc.WriteBufferSize,
		ReadBufferSize:         hc.ReadBufferSize,
		MaxResponseHeaderBytes: hc.MaxResponseHeaderBytes,
		TLSClientConfig:        cfg.tlsConfig,
		ForceAttemptHTTP2:      hc.ForceHTTP2,
	}

	if cfg.proxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.proxyURL)
	} else if cfg.proxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return transport
}

func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	if cfg.serviceName == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String("http.client.name", cfg.serviceName)}
}

// Option configures a Client.
type Option func(*internalConfig)

// WithBaseURL sets the root address every request path is appended to.
// It may contain segment tokens, e.g. "https://:tenant.example.com/api".
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.baseURL = baseURL
	}
}

// WithSerializers replaces the serializers. The first one encodes object
// bodies.
func WithSerializers(serializers ...Serializer) Option {
	return func(cfg *internalConfig) {
		cfg.serializers = serializers
		cfg.serializersSet = true
	}
}

func WithAuthenticator(auth Authenticator) Option {
	return func(cfg *internalConfig) {
		cfg.auth = auth
	}
}

// WithMiddleware appends middlewares. They run after the hooks and before
// the built-in resilience middlewares, in the given order.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(cfg *internalConfig) {
		cfg.middlewares = append(cfg.middlewares, middlewares...)
	}
}

// WithNamingConvention sets how value names match segment tokens.
func WithNamingConvention(nc resource.NamingConvention) Option {
	return func(cfg *internalConfig) {
		cfg.namingConvention = nc
	}
}

// WithAutoParameters controls whether values that fill no segment become
// query parameters. Enabled by default.
func WithAutoParameters(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.autoParameters = enabled
	}
}

func WithArrayFormatter(f resource.ArrayFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.arrayFormatter = f
	}
}

func WithUserAgent(userAgent string) Option {
	return func(cfg *internalConfig) {
		cfg.userAgent = userAgent
	}
}

// WithDefaultHeader adds a header to every request. Request headers of
// the same name are sent after it.
func WithDefaultHeader(name, value string) Option {
	return func(cfg *internalConfig) {
		cfg.defaultHeaders.Add(name, value)
	}
}

// WithRedirects sets the default redirect policy. maxRedirects of zero
// keeps the net/http limit of 10.
func WithRedirects(follow bool, maxRedirects int) Option {
	return func(cfg *internalConfig) {
		cfg.followRedirects = follow
		cfg.maxRedirects = maxRedirects
	}
}

// WithEnableTrace collects connection timings for every request.
func WithEnableTrace() Option {
	return func(cfg *internalConfig) {
		cfg.enableTrace = true
	}
}

// WithLogger sets the logger for debug output and cache warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.logger = logger
		cfg.loggerSet = true
	}
}

// WithDebug logs every request and response at debug level. Without
// WithLogger the events go to stdout.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.debug = enabled
	}
}

// WithGenerateCurl adds a cURL rendering of each request to the debug log.
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.generateCurl = enabled
	}
}

// WithBeforeRequest runs fn on every request before it is sent.
func WithBeforeRequest(fn RequestInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.interceptors.AddRequestInterceptor(fn)
	}
}

// WithAfterRequest runs fn on every response.
func WithAfterRequest(fn ResponseInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.interceptors.AddResponseInterceptor(fn)
	}
}

func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithTransport sends requests through rt instead of a transport built
// from Config. Config.Timeout still applies.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.transport = rt
	}
}

// WithServiceName adds an http.client.name attribute to spans and metrics.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.serviceName = name
	}
}

// WithTracing turns the OpenTelemetry middleware on or off. It is on by
// default and uses the global providers.
func WithTracing(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.tracing = enabled
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.tracerProvider = tp
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.meterProvider = mp
	}
}

// WithPropagators sets the propagators that inject the trace context.
// Default: the global text map propagator.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.propagators = p
	}
}

// WithFilter skips tracing for requests f rejects. All filters must pass.
//
//	httpclient.WithFilter(func(req *httpclient.Request) bool {
//	    return req.Operation != "HealthCheck"
//	})
func WithFilter(f Filter) Option {
	return func(cfg *internalConfig) {
		cfg.filters = append(cfg.filters, f)
	}
}

func WithSpanNameFormatter(f SpanNameFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.spanNameFormatter = f
	}
}

// WithDisableNetworkTrace stops recording DNS, connect and TLS timings on
// spans.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.networkTrace = false
	}
}

// WithRetryConfig enables retries. Requests are not retried by default.
func WithRetryConfig(rc RetryConfig) Option {
	return func(cfg *internalConfig) {
		cfg.retry = rc
	}
}

// WithRetryClassifier decides which outcomes are retried. Default:
// DefaultClassifier.
func WithRetryClassifier(c RetryClassifier) Option {
	return func(cfg *internalConfig) {
		cfg.retryClassifier = c
	}
}

// WithRetryBackOff replaces the exponential backoff built from
// RetryConfig. newBackOff is called once per call.
func WithRetryBackOff(newBackOff func() backoff.BackOff) Option {
	return func(cfg *internalConfig) {
		cfg.retryBackOff = newBackOff
	}
}

func WithCircuitBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.breaker = &bc
	}
}

func WithRateLimit(rc RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.rateLimit = &rc
	}
}

func WithCache(cc CacheConfig) Option {
	return func(cfg *internalConfig) {
		cfg.cache = &cc
	}
}

// WithRequestCoalescing merges concurrent identical requests. No methods
// means GET and HEAD.
func WithRequestCoalescing(methods ...string) Option {
	return func(cfg *internalConfig) {
		cfg.coalesceEnabled = true
		cfg.coalesce = methods
	}
}

func WithPrometheus(pm *PrometheusMetrics) Option {
	return func(cfg *internalConfig) {
		cfg.prometheus = pm
	}
}

// WithHedging sends extra attempts for idempotent calls that are slower
// than the hedge delay. Hedges run inside retry, so each retry attempt may
// be hedged.
func WithHedging(hc HedgeConfig) Option {
	return func(cfg *internalConfig) {
		cfg.hedge = &hc
	}
}

// WithChaos injects latency and failures just before the transport. For
// testing only.
func WithChaos(cc ChaosConfig) Option {
	return func(cfg *internalConfig) {
		cfg.chaos = &cc
	}
}

func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.tlsConfig = tlsCfg
	}
}

func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.proxyURL = proxyURL
		cfg.proxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment uses HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
// Enabled by default.
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.proxyFromEnvironment = enabled
	}
}
