package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// sender is the terminal of the chain. It renders a Request into an
// *http.Request, sends it and reads the whole response body.
type sender struct {
	transport http.RoundTripper
	timeout   time.Duration
	settings  *TransmissionSettings
}

func newSender(transport http.RoundTripper, timeout time.Duration, settings *TransmissionSettings) *sender {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &sender{transport: transport, timeout: timeout, settings: settings}
}

func (s *sender) send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := s.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	var nt *networkTrace
	if req.Trace {
		nt = &networkTrace{}
		httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), nt.clientTrace()))
	}

	client := &http.Client{
		Transport:     s.transport,
		Timeout:       s.timeout,
		CheckRedirect: redirectPolicy(req),
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, s.wrapTransportError(ctx, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, s.wrapTransportError(ctx, fmt.Errorf("httpclient: read response body: %w", err))
	}
	duration := time.Since(start)

	resp := &Response{
		statusCode: httpResp.StatusCode,
		status:     httpResp.Status,
		header:     httpResp.Header,
		body:       body,
		requestURL: httpReq.URL.String(),
		duration:   duration,
	}
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		resp.requestURL = httpResp.Request.URL.String()
	}
	if d, ok := s.settings.FindSerializer(resp.ContentType()); ok {
		resp.deserializer = d
	}
	if nt != nil {
		resp.traceInfo = nt.traceInfo(duration)
	}
	return resp, nil
}

func (s *sender) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target, err := req.URL()
	if err != nil {
		return nil, err
	}

	body, err := req.Body.Serialize(s.settings)
	if err != nil {
		return nil, fmt.Errorf("httpclient: serialize %s body: %w", req, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body.Reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	switch {
	case body.ContentLength >= 0:
		httpReq.ContentLength = body.ContentLength
	case body.Reader != nil:
		httpReq.ContentLength = -1
	}
	if body.Reader != nil && isReplayable(req.Body) {
		httpReq.GetBody = func() (io.ReadCloser, error) {
			again, err := req.Body.Serialize(s.settings)
			if err != nil {
				return nil, err
			}
			if rc, ok := again.Reader.(io.ReadCloser); ok {
				return rc, nil
			}
			return io.NopCloser(again.Reader), nil
		}
	}

	req.Header.writeTo(httpReq.Header)
	if body.ContentType != "" && !req.Header.Has("Content-Type") {
		httpReq.Header.Set("Content-Type", body.ContentType)
	}
	if req.UserAgent != "" && !req.Header.Has("User-Agent") {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.Credentials != nil {
		httpReq.SetBasicAuth(req.Credentials.Username, req.Credentials.Password)
	}
	return httpReq, nil
}

// wrapTransportError turns failures caused by a done context into a
// *CanceledError and passes anything else through unchanged.
func (s *sender) wrapTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CanceledError{Stage: "transport", Err: errors.Join(ctxErr, err)}
	}
	return err
}

func redirectPolicy(req *Request) func(*http.Request, []*http.Request) error {
	if !req.FollowRedirects {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if req.MaxRedirects <= 0 {
		return nil
	}

	limit := req.MaxRedirects
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > limit {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, limit)
		}
		return nil
	}
}
