package httpclient

import (
	"context"
	"errors"
)

// Runner executes prepared requests: it authenticates the request, passes
// it through the middleware chain and lets the terminal send it.
//
// A Runner is immutable and safe for concurrent use. Each call must use
// its own *Request.
type Runner struct {
	auth     Authenticator
	chain    *chain
	settings *TransmissionSettings
}

// NewRunner builds a runner around terminal. A nil settings value means
// DefaultTransmissionSettings and a nil auth means NoAuth.
//
// Client wires a runner whose terminal sends over an http.RoundTripper.
// NewRunner is exported so the pipeline can be driven with a fake terminal.
func NewRunner(terminal Next, settings *TransmissionSettings, auth Authenticator, middlewares ...Middleware) *Runner {
	if settings == nil {
		settings = DefaultTransmissionSettings()
	}
	if auth == nil {
		auth = NoAuth{}
	}
	return &Runner{
		auth:     auth,
		chain:    newChain(terminal, middlewares...),
		settings: settings,
	}
}

// Run executes req. Errors before the terminal (cancellation,
// authentication, a middleware abort) are typed and mean nothing was
// sent. Transport errors are returned unchanged.
func (r *Runner) Run(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CanceledError{Stage: "authenticate", Err: err}
	}

	if err := r.auth.Authenticate(ctx, req); err != nil {
		var canceled *CanceledError
		if errors.As(err, &canceled) {
			return nil, err
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &CanceledError{Stage: "authenticate", Err: err}
		}
		return nil, &AuthenticationError{Err: err}
	}

	resp, err := r.chain.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	// Middlewares may answer without the terminal, e.g. from a cache.
	if resp.deserializer == nil {
		if d, ok := r.settings.FindSerializer(resp.ContentType()); ok {
			resp.deserializer = d
		}
	}
	return resp, nil
}

// Middlewares returns the number of middlewares in the chain.
func (r *Runner) Middlewares() int {
	return r.chain.Len()
}
