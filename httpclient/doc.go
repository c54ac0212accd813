// Package httpclient is a REST client built around resource templates,
// a middleware chain and status-code driven response dispatch.
//
// # Quick Start
//
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("billing"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := client.Request("GetProduct").
//	    Value("id", 7).
//	    Value("expand", "prices"). // fills no segment, becomes ?expand=prices
//	    Get(ctx, "products/:id")
//	if err != nil {
//	    return err
//	}
//
//	err = httpclient.OnOk(resp, func(p Product) {
//	    fmt.Println(p.Name)
//	})
//
// # Resources
//
// A path is a template whose ":name" tokens are filled from the values of
// the request, in order and matched by the client's naming convention.
// Values left over become query parameters unless auto parameters are
// turned off. An object body that implements resource.Valuer fills tokens
// the request gave no values for:
//
//	client.Request("UpdateProduct").Body(product).Put(ctx, "products/:id")
//
// # Dispatch
//
// A Response keeps its body raw until the caller states which status code
// it expects. On fails with a *StatusCodeError on any other code:
//
//	h, err := resp.On(http.StatusCreated)
//	if err != nil {
//	    return err
//	}
//	var created Product
//	err = h.Unwrap(&created)
//
// When dispatches without failing; AsByteArray, AsString and AsFile skip
// the deserializer.
//
// # Middleware
//
// Middlewares see the request on the way out in registration order and
// the response on the way back in reverse order. A canceled context stops
// the call before the next hop and never reaches the transport.
//
//	logging := httpclient.MiddlewareFunc(func(ctx context.Context, req *httpclient.Request, next httpclient.Next) (*httpclient.Response, error) {
//	    log.Println(req)
//	    return next(ctx, req)
//	})
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithMiddleware(logging),
//	)
//
// Built-in stages are enabled by options:
//
//   - WithRetryConfig: exponential backoff with jitter, honoring Retry-After
//   - WithCircuitBreaker: gobreaker, optionally shared through Redis
//   - WithRateLimit: token buckets per client and per operation
//   - WithCache: in-memory or Redis response cache for GET
//   - WithRequestCoalescing: singleflight for concurrent identical calls
//   - WithPrometheus: request counters and latency histograms
//   - WithHedging: extra attempts for slow idempotent calls
//   - WithChaos: injected latency and failures for testing
//   - WithDebug, WithGenerateCurl: zerolog request logging
//
// # Observability
//
// OpenTelemetry tracing is on by default. Each call gets a client span
// named "HTTP {method} {operation}" with the trace context injected into
// its headers, plus these metrics:
//
//   - http.client.request.duration, http.client.active_requests
//   - http.client.dns.duration, http.client.connection.duration,
//     http.client.tls.duration, http.client.ttfb
//   - http.client.retry.attempts, http.client.retry.exhausted
//   - http.client.cache.lookups, http.client.breaker.requests
//
// # Testing
//
// MockTransport stubs responses and records requests:
//
//	mock := httpclient.NewMockTransport().
//	    StubJSON(http.MethodGet, "/products/7", http.StatusOK, Product{ID: 7})
//	client, _ := httpclient.New(
//	    httpclient.WithBaseURL("http://api.test"),
//	    httpclient.WithMockTransport(mock),
//	)
package httpclient
