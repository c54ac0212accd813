package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/kroma-labs/restkit/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMiddleware appends name+">" on the way out and "<"+name on the
// way back.
func recordingMiddleware(name string, trail *[]string) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *Request, next Next) (*Response, error) {
		*trail = append(*trail, name+">")
		resp, err := next(ctx, req)
		*trail = append(*trail, "<"+name)
		return resp, err
	})
}

func okTerminal(calls *int) Next {
	return func(_ context.Context, req *Request) (*Response, error) {
		*calls++
		return NewResponse(http.StatusOK, nil, nil, req.Resource.String()), nil
	}
}

func newTestRequest() *Request {
	return NewRequest(http.MethodGet, resource.New("http://api.test/products"), nil)
}

func TestChain_Order(t *testing.T) {
	tests := []struct {
		name      string
		names     []string
		wantTrail []string
	}{
		{
			name:      "given no middlewares, then only the terminal runs",
			wantTrail: nil,
		},
		{
			name:      "given A then B, then request runs A to B and response B to A",
			names:     []string{"A", "B"},
			wantTrail: []string{"A>", "B>", "<B", "<A"},
		},
		{
			name:      "given three middlewares, then they nest in registration order",
			names:     []string{"A", "B", "C"},
			wantTrail: []string{"A>", "B>", "C>", "<C", "<B", "<A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trail []string
			middlewares := make([]Middleware, 0, len(tt.names))
			for _, n := range tt.names {
				middlewares = append(middlewares, recordingMiddleware(n, &trail))
			}

			calls := 0
			c := newChain(okTerminal(&calls), middlewares...)

			resp, err := c.Run(context.Background(), newTestRequest())

			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode())
			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.wantTrail, trail)
			assert.Equal(t, len(tt.names), c.Len())
		})
	}
}

func TestChain_Cancellation(t *testing.T) {
	tests := []struct {
		name      string
		cancelAt  int
		wantStage string
		wantTrail []string
	}{
		{
			name:      "given context canceled before the chain, then no middleware runs",
			cancelAt:  -1,
			wantStage: "middleware[0]",
		},
		{
			name:      "given first middleware cancels, then the second never runs",
			cancelAt:  0,
			wantStage: "middleware[1]",
			wantTrail: []string{"A>", "<A"},
		},
		{
			name:      "given last middleware cancels, then the transport is never reached",
			cancelAt:  1,
			wantStage: "transport",
			wantTrail: []string{"A>", "B>", "<B", "<A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelAt < 0 {
				cancel()
			}

			var trail []string
			middlewares := make([]Middleware, 0, 2)
			for i, n := range []string{"A", "B"} {
				inner := recordingMiddleware(n, &trail)
				middlewares = append(middlewares, MiddlewareFunc(
					func(ctx context.Context, req *Request, next Next) (*Response, error) {
						if i == tt.cancelAt {
							cancel()
						}
						return inner.Invoke(ctx, req, next)
					}))
			}

			calls := 0
			c := newChain(okTerminal(&calls), middlewares...)

			resp, err := c.Run(ctx, newTestRequest())

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Zero(t, calls)
			assert.ErrorIs(t, err, ErrCanceled)
			assert.ErrorIs(t, err, context.Canceled)

			var canceled *CanceledError
			require.ErrorAs(t, err, &canceled)
			assert.Equal(t, tt.wantStage, canceled.Stage)
			assert.Equal(t, tt.wantTrail, trail)
		})
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	abort := errors.New("rejected by policy")

	tests := []struct {
		name       string
		middleware Middleware
		wantStatus int
		wantErr    error
	}{
		{
			name: "given middleware answers itself, then terminal is skipped",
			middleware: MiddlewareFunc(func(context.Context, *Request, Next) (*Response, error) {
				return NewResponse(http.StatusNoContent, nil, nil, ""), nil
			}),
			wantStatus: http.StatusNoContent,
		},
		{
			name: "given middleware aborts, then its error is returned",
			middleware: MiddlewareFunc(func(context.Context, *Request, Next) (*Response, error) {
				return nil, abort
			}),
			wantErr: abort,
		},
		{
			name: "given middleware returns nothing, then ErrNoResponse",
			middleware: MiddlewareFunc(func(context.Context, *Request, Next) (*Response, error) {
				return nil, nil
			}),
			wantErr: ErrNoResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := newChain(okTerminal(&calls), tt.middleware)

			resp, err := c.Run(context.Background(), newTestRequest())

			assert.Zero(t, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode())
		})
	}
}

func TestChain_MiddlewareMutatesRequest(t *testing.T) {
	var seen string
	terminal := func(_ context.Context, req *Request) (*Response, error) {
		seen = req.Header.Get("X-Trace")
		return NewResponse(http.StatusOK, nil, nil, ""), nil
	}
	stamp := MiddlewareFunc(func(ctx context.Context, req *Request, next Next) (*Response, error) {
		req.Header.Set("X-Trace", "abc")
		return next(ctx, req)
	})

	c := newChain(terminal, nil, stamp)

	_, err := c.Run(context.Background(), newTestRequest())

	require.NoError(t, err)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, 1, c.Len(), "nil middlewares are dropped")
}
