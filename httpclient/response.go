package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"time"
)

// Response is the immutable result of a call: status, headers and the
// fully read body, plus the deserializer chosen for its content type.
//
// The body is decoded only through a ResponseHandler, which is obtained by
// declaring the expected status code:
//
//	resp, err := client.Request("GetProduct").Value("id", 1).Get(ctx, "products/:id")
//	if err != nil {
//	    return err
//	}
//
//	var product Product
//	h, err := resp.On(http.StatusOK)
//	if err != nil {
//	    return err // *StatusCodeError with expected and actual codes
//	}
//	if err := h.Unwrap(&product); err != nil {
//	    return err
//	}
type Response struct {
	statusCode   int
	status       string
	header       http.Header
	body         []byte
	requestURL   string
	deserializer Serializer
	duration     time.Duration
	traceInfo    *TraceInfo
}

// NewResponse builds a response from its parts. It is meant for
// middlewares that answer without calling the transport and for tests.
// The deserializer is chosen by the client from the Content-Type header.
func NewResponse(statusCode int, header http.Header, body []byte, requestURL string) *Response {
	if header == nil {
		header = make(http.Header)
	}
	return &Response{
		statusCode: statusCode,
		status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		header:     header,
		body:       body,
		requestURL: requestURL,
	}
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Status returns the status line, e.g. "200 OK".
func (r *Response) Status() string { return r.status }

// Header returns the response headers. Callers must not modify them.
func (r *Response) Header() http.Header { return r.header }

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string { return r.header.Get("Content-Type") }

// RequestURL returns the URL that produced the response, after redirects.
func (r *Response) RequestURL() string { return r.requestURL }

// Body returns the raw body. Callers must not modify it.
func (r *Response) Body() []byte { return r.body }

// String returns the raw body as text.
func (r *Response) String() string { return string(r.body) }

// Duration returns how long the transport took to produce the response.
func (r *Response) Duration() time.Duration { return r.duration }

// TraceInfo returns connection timings when tracing was enabled for the
// request, or nil.
func (r *Response) TraceInfo() *TraceInfo { return r.traceInfo }

// CanDeserialize reports whether a serializer accepts the content type.
func (r *Response) CanDeserialize() bool { return r.deserializer != nil }

// Is reports whether the status code equals code.
func (r *Response) Is(code int) bool { return r.statusCode == code }

// IsOk reports whether the status code is 200.
func (r *Response) IsOk() bool { return r.statusCode == http.StatusOK }

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool { return r.statusCode >= 200 && r.statusCode < 300 }

// IsError reports whether the status code is 4xx or 5xx.
func (r *Response) IsError() bool { return r.statusCode >= 400 }

// When calls fn with a handler if the status code equals code. Unlike On,
// a mismatch is not an error; fn is simply not called.
//
//	resp.
//	    When(http.StatusOK, func(h *httpclient.ResponseHandler) { ... }).
//	    When(http.StatusNotFound, func(h *httpclient.ResponseHandler) { ... })
func (r *Response) When(code int, fn func(h *ResponseHandler)) *Response {
	if r.statusCode == code {
		fn(&ResponseHandler{resp: r})
	}
	return r
}

// On asserts that the status code equals code and returns a handler for
// the body. A mismatch returns a *StatusCodeError.
func (r *Response) On(code int) (*ResponseHandler, error) {
	return r.Expect(code)
}

// OnOk is On(http.StatusOK).
func (r *Response) OnOk() (*ResponseHandler, error) {
	return r.Expect(http.StatusOK)
}

// Expect asserts that the status code is one of codes.
func (r *Response) Expect(codes ...int) (*ResponseHandler, error) {
	if !slices.Contains(codes, r.statusCode) {
		return nil, &StatusCodeError{
			Expected: slices.Clone(codes),
			Actual:   r.statusCode,
			URL:      r.requestURL,
		}
	}
	return &ResponseHandler{resp: r}, nil
}

// ResponseHandler gives access to the body of a response whose status code
// has been confirmed. Each accessor decodes on demand.
type ResponseHandler struct {
	resp *Response
}

// Response returns the underlying response.
func (h *ResponseHandler) Response() *Response {
	return h.resp
}

// Unwrap decodes the body into v with the deserializer chosen for the
// response content type. It returns ErrNoDeserializer when no serializer
// accepts that content type.
func (h *ResponseHandler) Unwrap(v any) error {
	if h.resp.deserializer == nil {
		return fmt.Errorf("%w: %q", ErrNoDeserializer, h.resp.ContentType())
	}
	if err := h.resp.deserializer.Deserialize(h.resp.body, v); err != nil {
		return fmt.Errorf("httpclient: decode %s body: %w", parseMediaType(h.resp.ContentType()), err)
	}
	return nil
}

// AsByteArray returns the raw body without decoding it.
func (h *ResponseHandler) AsByteArray() []byte {
	return h.resp.body
}

// AsString returns the raw body as text.
func (h *ResponseHandler) AsString() string {
	return string(h.resp.body)
}

// AsFile returns the body as a downloaded file, using the
// Content-Disposition header for its names when present.
func (h *ResponseHandler) AsFile() *File {
	f := &File{
		ContentType: h.resp.ContentType(),
		Content:     h.resp.body,
	}

	if cd := h.resp.header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			f.Name = params["name"]
			f.FileName = params["filename"]
		}
	}
	return f
}

// Unwrap decodes the body of a confirmed response into a new T.
//
//	h, err := resp.OnOk()
//	if err != nil {
//	    return err
//	}
//	product, err := httpclient.Unwrap[Product](h)
func Unwrap[T any](h *ResponseHandler) (T, error) {
	var v T
	err := h.Unwrap(&v)
	return v, err
}

// On asserts the status code, decodes the body into T and passes it to fn.
// fn is never called when the status does not match or decoding fails.
func On[T any](resp *Response, code int, fn func(T)) error {
	h, err := resp.On(code)
	if err != nil {
		return err
	}
	v, err := Unwrap[T](h)
	if err != nil {
		return err
	}
	fn(v)
	return nil
}

// OnOk is On with http.StatusOK.
func OnOk[T any](resp *Response, fn func(T)) error {
	return On(resp, http.StatusOK, fn)
}

// File is a response body downloaded as a file.
type File struct {
	// Name is the form name from Content-Disposition, if any.
	Name string

	// FileName is the filename from Content-Disposition, if any.
	FileName string

	ContentType string
	Content     []byte
}

// Reader returns a reader over the file content.
func (f *File) Reader() io.Reader {
	return bytes.NewReader(f.Content)
}

// WriteTo writes the content to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Content)
	return int64(n), err
}
