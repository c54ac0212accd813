package httpclient

import (
	"context"
	"strconv"
)

// Next continues a call with the rest of the chain.
type Next func(ctx context.Context, req *Request) (*Response, error)

// Middleware intercepts a call. It may mutate req before calling next,
// inspect or replace the response next returns, or return a response of
// its own without calling next at all.
//
// Middlewares run in registration order on the way to the transport and in
// reverse order on the way back, so the first middleware sees the request
// first and the response last.
type Middleware interface {
	Invoke(ctx context.Context, req *Request, next Next) (*Response, error)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, req *Request, next Next) (*Response, error)

// Invoke implements Middleware.
func (f MiddlewareFunc) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	return f(ctx, req, next)
}

// chain runs an ordered list of middlewares in front of a terminal Next.
// It is built once by New and shared read-only by every call.
type chain struct {
	middlewares []Middleware
	terminal    Next
}

func newChain(terminal Next, middlewares ...Middleware) *chain {
	list := make([]Middleware, 0, len(middlewares))
	for _, m := range middlewares {
		if m != nil {
			list = append(list, m)
		}
	}
	return &chain{middlewares: list, terminal: terminal}
}

// Len returns the number of middlewares, excluding the terminal.
func (c *chain) Len() int {
	return len(c.middlewares)
}

// Run starts the call at the head of the chain.
func (c *chain) Run(ctx context.Context, req *Request) (*Response, error) {
	return c.step(0)(ctx, req)
}

// step returns the continuation for position i. Position len(middlewares)
// is the terminal. Every hop checks the context first so a canceled call
// never reaches the transport.
func (c *chain) step(i int) Next {
	return func(ctx context.Context, req *Request) (*Response, error) {
		if i >= len(c.middlewares) {
			if err := ctx.Err(); err != nil {
				return nil, &CanceledError{Stage: "transport", Err: err}
			}
			return c.terminal(ctx, req)
		}

		if err := ctx.Err(); err != nil {
			return nil, &CanceledError{Stage: "middleware[" + strconv.Itoa(i) + "]", Err: err}
		}

		resp, err := c.middlewares[i].Invoke(ctx, req, c.step(i+1))
		if err == nil && resp == nil {
			return nil, ErrNoResponse
		}
		return resp, err
	}
}
