package httpclient

import (
	"context"

	"github.com/google/uuid"
)

var _ Middleware = (*InterceptorChain)(nil)

// RequestInterceptor changes a request before it is sent. An error aborts
// the call before the transport.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor inspects a response once it has arrived. An error
// replaces the response.
type ResponseInterceptor func(ctx context.Context, resp *Response, req *Request) error

// InterceptorChain runs request interceptors in the order they were added,
// then the rest of the chain, then the response interceptors in order.
// It is a Middleware; the client uses one for WithBeforeRequest and
// WithAfterRequest.
type InterceptorChain struct {
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// NewInterceptorChain creates an empty interceptor chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// AddRequestInterceptor adds a request interceptor to the chain.
func (c *InterceptorChain) AddRequestInterceptor(i RequestInterceptor) *InterceptorChain {
	c.requestInterceptors = append(c.requestInterceptors, i)
	return c
}

// AddResponseInterceptor adds a response interceptor to the chain.
func (c *InterceptorChain) AddResponseInterceptor(i ResponseInterceptor) *InterceptorChain {
	c.responseInterceptors = append(c.responseInterceptors, i)
	return c
}

// Empty reports whether no interceptor was added.
func (c *InterceptorChain) Empty() bool {
	return len(c.requestInterceptors) == 0 && len(c.responseInterceptors) == 0
}

// Invoke implements Middleware.
func (c *InterceptorChain) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	for _, i := range c.requestInterceptors {
		if err := i(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := next(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, i := range c.responseInterceptors {
		if err := i(ctx, resp, req); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// HeaderInterceptor sets a header unless the request already carries it.
func HeaderInterceptor(name, value string) RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		if !req.Header.Has(name) {
			req.Header.Add(name, value)
		}
		return nil
	}
}

// CorrelationIDInterceptor sets headerName to a fresh ID per request,
// keeping one that is already present. A nil idFunc generates UUIDv4s.
func CorrelationIDInterceptor(headerName string, idFunc func() string) RequestInterceptor {
	if headerName == "" {
		headerName = "X-Correlation-ID"
	}
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return func(_ context.Context, req *Request) error {
		if !req.Header.Has(headerName) {
			req.Header.Set(headerName, idFunc())
		}
		return nil
	}
}

// UserAgentInterceptor sets the request user agent.
func UserAgentInterceptor(userAgent string) RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		req.UserAgent = userAgent
		return nil
	}
}
