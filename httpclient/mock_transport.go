package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"

	json "github.com/goccy/go-json"
)

var _ http.RoundTripper = (*MockTransport)(nil)

// ErrNoStub is returned by MockTransport when no stub matches a request.
var ErrNoStub = errors.New("httpclient: no stub for request")

// MockTransport is an http.RoundTripper for tests. It answers from stubs,
// first match wins, and records every request with its body.
//
//	mock := httpclient.NewMockTransport().
//	    StubJSON(http.MethodGet, "/products/1", http.StatusOK, product)
//	client, _ := httpclient.New(
//	    httpclient.WithBaseURL("http://api.test"),
//	    httpclient.WithMockTransport(mock),
//	)
type MockTransport struct {
	mu       sync.Mutex
	stubs    []stub
	fallback *stub
	requests []RecordedRequest
	hook     func(*http.Request)
}

// RecordedRequest is a request as the mock received it.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type stub struct {
	match  func(*http.Request) bool
	status int
	header http.Header
	body   []byte
	err    error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every request that no other stub matches.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{status: statusCode, header: make(http.Header), body: []byte(body)}
	return m
}

// StubError fails every request that no other stub matches.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{err: err}
	return m
}

// StubPath answers requests for path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathRegex answers requests whose path matches pattern.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, statusCode, body)
}

// StubMethod answers requests with method.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.Method == method
	}, statusCode, body)
}

// StubJSON answers method and path with v encoded as application/json.
// It panics when v cannot be encoded.
func (m *MockTransport) StubJSON(method, path string, statusCode int, v any) *MockTransport {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("httpclient: encode stub body: %v", err))
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return m.add(stub{
		match: func(req *http.Request) bool {
			return req.Method == method && req.URL.Path == path
		},
		status: statusCode,
		header: header,
		body:   data,
	})
}

// StubFunc answers requests matching match with a plain body.
func (m *MockTransport) StubFunc(match func(*http.Request) bool, statusCode int, body string) *MockTransport {
	return m.add(stub{match: match, status: statusCode, header: make(http.Header), body: []byte(body)})
}

// StubFuncHeader is StubFunc with response headers.
func (m *MockTransport) StubFuncHeader(
	match func(*http.Request) bool,
	statusCode int,
	header http.Header,
	body []byte,
) *MockTransport {
	return m.add(stub{match: match, status: statusCode, header: header.Clone(), body: body})
}

// StubFuncError fails requests matching match with err.
func (m *MockTransport) StubFuncError(match func(*http.Request) bool, err error) *MockTransport {
	return m.add(stub{match: match, err: err})
}

func (m *MockTransport) add(s stub) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, s)
	return m
}

// OnRequest calls fn with every request before it is answered.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
	return m
}

// RoundTrip implements http.RoundTripper. Like a real transport it fails
// with the context error when the request context is already done.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	rec := RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		rec.Body = body
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	hook := m.hook
	var matched *stub
	for i := range m.stubs {
		if m.stubs[i].match(req) {
			matched = &m.stubs[i]
			break
		}
	}
	if matched == nil {
		matched = m.fallback
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoStub, req.Method, req.URL)
	}
	if matched.err != nil {
		return nil, matched.err
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", matched.status, http.StatusText(matched.status)),
		StatusCode:    matched.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        matched.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(matched.body)),
		ContentLength: int64(len(matched.body)),
		Request:       req,
	}, nil
}

// Requests returns the recorded requests in arrival order.
func (m *MockTransport) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or false when there is none.
func (m *MockTransport) LastRequest() (RecordedRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Reset drops stubs, recorded requests and the hook.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = nil
	m.fallback = nil
	m.requests = nil
	m.hook = nil
}

// WithMockTransport sends every request through mock.
func WithMockTransport(mock *MockTransport) Option {
	return WithTransport(mock)
}
