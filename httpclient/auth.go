package httpclient

import "context"

// Authenticator prepares a request before it enters the middleware chain.
// It may add headers, credentials or query parameters. A returned error
// aborts the call without any transport activity.
type Authenticator interface {
	Authenticate(ctx context.Context, req *Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, req *Request) error

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// NoAuth leaves requests untouched. It is the default authenticator.
type NoAuth struct{}

// Authenticate implements Authenticator.
func (NoAuth) Authenticate(context.Context, *Request) error { return nil }

// BasicAuth sends a username and password with every request.
func BasicAuth(username, password string) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, req *Request) error {
		req.Credentials = &Credentials{Username: username, Password: password}
		return nil
	})
}

// BearerAuth sends a static bearer token.
func BearerAuth(token string) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, req *Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// BearerTokenAuth fetches a bearer token for every request, e.g. from a
// refreshing token source.
func BearerTokenAuth(token func(ctx context.Context) (string, error)) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, req *Request) error {
		t, err := token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+t)
		return nil
	})
}

// APIKeyHeaderAuth sends key in the named header. An empty name defaults
// to X-API-Key.
func APIKeyHeaderAuth(name, key string) Authenticator {
	if name == "" {
		name = "X-API-Key"
	}
	return AuthenticatorFunc(func(_ context.Context, req *Request) error {
		req.Header.Set(name, key)
		return nil
	})
}

// APIKeyQueryAuth sends key as a query parameter.
func APIKeyQueryAuth(name, key string) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, req *Request) error {
		req.Resource = req.Resource.WithParameter(name, key)
		return nil
	})
}
