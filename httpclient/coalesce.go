package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

var _ Middleware = (*coalesceMiddleware)(nil)

// GenerateCoalesceKey returns a stable key for identical requests:
// SHA-256 over the method, the URL with sorted query parameters and any
// extra parts such as a credential fingerprint.
func GenerateCoalesceKey(method, rawURL string, extra ...[]byte) string {
	parts := []string{method}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		parts = append(parts, rawURL)
	} else {
		query := parsed.Query()
		params := make([]string, 0, len(query))
		for key, values := range query {
			sort.Strings(values)
			for _, v := range values {
				params = append(params, key+"="+v)
			}
		}
		sort.Strings(params)
		parts = append(parts,
			parsed.Scheme+"://"+parsed.Host+parsed.Path,
			strings.Join(params, "&"),
		)
	}

	for _, e := range extra {
		if len(e) > 0 {
			sum := sha256.Sum256(e)
			parts = append(parts, hex.EncodeToString(sum[:]))
		}
	}
	return hashString(strings.Join(parts, "|"))
}

func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// coalesceMiddleware lets concurrent identical requests share one call.
// Responses are immutable, so every waiter gets the same *Response.
type coalesceMiddleware struct {
	group   singleflight.Group
	methods []string
}

// CoalesceMiddleware merges concurrent identical GET and HEAD requests, or
// requests of the given methods, into a single upstream call. Requests
// with a body are never merged.
func CoalesceMiddleware(methods ...string) Middleware {
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodHead}
	}
	return &coalesceMiddleware{methods: methods}
}

func (m *coalesceMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	if !slices.Contains(m.methods, req.Method) || hasBody(req) {
		return next(ctx, req)
	}

	target, err := req.URL()
	if err != nil {
		return next(ctx, req)
	}
	key := requestKey(req, target)

	// The shared call must not die with the first caller's context.
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return next(shared, req.Clone())
	})

	select {
	case <-ctx.Done():
		return nil, &CanceledError{Stage: "coalesce", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	}
}

func hasBody(req *Request) bool {
	if req.Body == nil {
		return false
	}
	_, empty := req.Body.(noBody)
	return !empty
}

// requestKey identifies a request by method, URL, credentials and the
// headers that change the answer.
func requestKey(req *Request, target string) string {
	var creds []byte
	if req.Credentials != nil {
		creds = []byte("basic:" + req.Credentials.Username + ":" + req.Credentials.Password)
	}
	return GenerateCoalesceKey(req.Method, target,
		keyPart("authorization", req.Header.Get("Authorization")),
		keyPart("accept", req.Header.Get("Accept")),
		creds,
	)
}

func keyPart(name, value string) []byte {
	if value == "" {
		return nil
	}
	return []byte(name + ":" + value)
}
