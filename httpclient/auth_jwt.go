package httpclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig configures JWTAuth.
type JWTConfig struct {
	// Method signs the tokens. Default gojwt.SigningMethodHS256.
	Method gojwt.SigningMethod

	// Key is the signing key: []byte for HMAC, *rsa.PrivateKey or
	// *ecdsa.PrivateKey otherwise.
	Key any

	Issuer   string
	Subject  string
	Audience []string

	// TTL is the token lifetime. Default 5 minutes.
	TTL time.Duration

	// Header receives the token. Default Authorization, sent as
	// "Bearer <token>".
	Header string
}

// JWTAuth signs a short-lived JWT and sends it as a bearer token. The token
// is reused until less than a tenth of its lifetime is left.
//
//	auth, err := httpclient.JWTAuth(httpclient.JWTConfig{
//	    Key:      []byte(secret),
//	    Issuer:   "billing",
//	    Audience: []string{"catalog"},
//	})
func JWTAuth(cfg JWTConfig) (Authenticator, error) {
	if cfg.Method == nil {
		cfg.Method = gojwt.SigningMethodHS256
	}
	if cfg.Key == nil {
		return nil, errors.New("httpclient: jwt signing key is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Header == "" {
		cfg.Header = "Authorization"
	}
	return &jwtAuth{cfg: cfg, now: time.Now}, nil
}

type jwtAuth struct {
	cfg JWTConfig
	now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func (a *jwtAuth) Authenticate(_ context.Context, req *Request) error {
	token, err := a.current()
	if err != nil {
		return err
	}
	if a.cfg.Header == "Authorization" {
		token = "Bearer " + token
	}
	req.Header.Set(a.cfg.Header, token)
	return nil
}

func (a *jwtAuth) current() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.token != "" && a.expires.Sub(now) > a.cfg.TTL/10 {
		return a.token, nil
	}

	expires := now.Add(a.cfg.TTL)
	claims := gojwt.RegisteredClaims{
		Issuer:    a.cfg.Issuer,
		Subject:   a.cfg.Subject,
		Audience:  a.cfg.Audience,
		ExpiresAt: gojwt.NewNumericDate(expires),
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	signed, err := gojwt.NewWithClaims(a.cfg.Method, claims).SignedString(a.cfg.Key)
	if err != nil {
		return "", fmt.Errorf("httpclient: sign jwt: %w", err)
	}

	a.token = signed
	a.expires = expires
	return signed, nil
}
