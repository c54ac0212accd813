package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kroma-labs/restkit/resource"
)

// RequestBuilder collects the parts of one request and sends it with one
// of the verb methods. Create it with Client.Request:
//
//	resp, err := client.Request("UpdateProduct").
//	    Value("id", product.ID).
//	    Header("Idempotency-Key", key).
//	    Body(product).
//	    Put(ctx, "products/:id")
//
// A RequestBuilder is not safe for concurrent use and should not be reused
// after a verb method has been called.
type RequestBuilder struct {
	client    *Client
	operation string
	path      string

	values *resource.Values
	query  []resource.Field
	header Header

	body   RequestBody
	files  []FileUpload
	fields []formField

	autoParameters  *bool
	userAgent       string
	credentials     *Credentials
	arrayFormatter  resource.ArrayFormatter
	followRedirects bool
	maxRedirects    int
	timeout         time.Duration
	trace           bool
}

// Path sets the resource path, relative to the client root. It may contain
// segment tokens such as ":id". A path given to the verb method wins.
func (rb *RequestBuilder) Path(path string) *RequestBuilder {
	rb.path = path
	return rb
}

// Value adds a named value. Values fill segment tokens of the path in
// order; the rest become query parameters unless auto parameters are off.
func (rb *RequestBuilder) Value(name string, v any) *RequestBuilder {
	rb.values = rb.values.With(name, v)
	return rb
}

// Values adds every field of values, in order.
func (rb *RequestBuilder) Values(values *resource.Values) *RequestBuilder {
	if values == nil {
		return rb
	}
	rb.values = resource.NewValues(append(rb.values.Fields(), values.Fields()...)...)
	return rb
}

// Query adds a query parameter that never fills a segment. A later
// parameter with the same name replaces it.
func (rb *RequestBuilder) Query(name string, v any) *RequestBuilder {
	rb.query = append(rb.query, resource.F(name, v))
	return rb
}

// Header adds a request header. Names are sent exactly as given.
func (rb *RequestBuilder) Header(name, value string) *RequestBuilder {
	rb.header.Add(name, value)
	return rb
}

// SetHeader replaces every value of a header, including client defaults.
func (rb *RequestBuilder) SetHeader(name, value string) *RequestBuilder {
	rb.header.Set(name, value)
	return rb
}

// Body sends payload encoded with the default serializer.
func (rb *RequestBuilder) Body(payload any) *RequestBuilder {
	rb.body = ObjectBody(payload)
	return rb
}

// BodyAs sends payload encoded with the serializer for contentType.
func (rb *RequestBuilder) BodyAs(contentType string, payload any) *RequestBuilder {
	rb.body = ObjectBodyAs(contentType, payload)
	return rb
}

// BodyBytes sends data as is.
func (rb *RequestBuilder) BodyBytes(contentType string, data []byte) *RequestBuilder {
	rb.body = ByteArrayBody(contentType, data)
	return rb
}

// RequestBody sets the body strategy directly.
func (rb *RequestBuilder) RequestBody(body RequestBody) *RequestBuilder {
	rb.body = body
	return rb
}

// File adds a file from disk to a multipart upload.
func (rb *RequestBuilder) File(name, path string) *RequestBuilder {
	rb.files = append(rb.files, FileFromPath(name, path))
	return rb
}

// FileReader adds a file read from r to a multipart upload.
func (rb *RequestBuilder) FileReader(name, fileName string, r io.Reader) *RequestBuilder {
	rb.files = append(rb.files, FileFromReader(name, fileName, r))
	return rb
}

// FileBytes adds in-memory data to a multipart upload.
func (rb *RequestBuilder) FileBytes(name, fileName string, data []byte) *RequestBuilder {
	rb.files = append(rb.files, FileFromBytes(name, fileName, data))
	return rb
}

// Upload adds prepared files to a multipart upload.
func (rb *RequestBuilder) Upload(files ...FileUpload) *RequestBuilder {
	rb.files = append(rb.files, files...)
	return rb
}

// FormField adds a plain field to a multipart upload. Fields are written
// before the files.
func (rb *RequestBuilder) FormField(name, value string) *RequestBuilder {
	rb.fields = append(rb.fields, formField{name: name, value: value})
	return rb
}

// AutoParameters overrides the client setting for this request.
func (rb *RequestBuilder) AutoParameters(enabled bool) *RequestBuilder {
	rb.autoParameters = &enabled
	return rb
}

// ArrayFormatter overrides how array parameters are rendered.
func (rb *RequestBuilder) ArrayFormatter(f resource.ArrayFormatter) *RequestBuilder {
	rb.arrayFormatter = f
	return rb
}

// NoRedirect returns 3xx responses instead of following them.
func (rb *RequestBuilder) NoRedirect() *RequestBuilder {
	rb.followRedirects = false
	return rb
}

// MaxRedirects follows at most n redirects, then fails with
// ErrTooManyRedirects.
func (rb *RequestBuilder) MaxRedirects(n int) *RequestBuilder {
	rb.followRedirects = true
	rb.maxRedirects = n
	return rb
}

// UserAgent overrides the client user agent for this call.
func (rb *RequestBuilder) UserAgent(userAgent string) *RequestBuilder {
	rb.userAgent = userAgent
	return rb
}

// Credentials sends HTTP basic authentication.
func (rb *RequestBuilder) Credentials(username, password string) *RequestBuilder {
	rb.credentials = &Credentials{Username: username, Password: password}
	return rb
}

// Timeout bounds this call, retries included.
func (rb *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	rb.timeout = d
	return rb
}

// EnableTrace collects connection timings into Response.TraceInfo.
func (rb *RequestBuilder) EnableTrace() *RequestBuilder {
	rb.trace = true
	return rb
}

// Get sends a GET request. path, when given, replaces Path and is joined
// with "/".
//
// Example:
//
//	resp, err := client.Request("GetProduct").
//	    Value("id", 7).
//	    Get(ctx, "products/:id")
func (rb *RequestBuilder) Get(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodGet, path)
}

// Post sends a POST request.
//
// Example:
//
//	resp, err := client.Request("CreateProduct").
//	    Body(product).
//	    Post(ctx, "products")
func (rb *RequestBuilder) Post(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodPost, path)
}

// Put sends a PUT request. A body implementing resource.Valuer can fill
// the segments.
//
// Example:
//
//	resp, err := client.Request("UpdateProduct").
//	    Body(product).
//	    Put(ctx, "products/:id")
func (rb *RequestBuilder) Put(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodPut, path)
}

// Patch sends a PATCH request.
func (rb *RequestBuilder) Patch(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodPatch, path)
}

// Delete sends a DELETE request.
//
// Example:
//
//	resp, err := client.Request("DeleteProduct").Value("id", 7).Delete(ctx, "products/:id")
func (rb *RequestBuilder) Delete(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodDelete, path)
}

// Head sends a HEAD request.
func (rb *RequestBuilder) Head(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodHead, path)
}

// Options sends an OPTIONS request.
func (rb *RequestBuilder) Options(ctx context.Context, path ...string) (*Response, error) {
	return rb.send(ctx, http.MethodOptions, path)
}

// Build merges the resource and returns the request a verb method would
// send, without sending it.
func (rb *RequestBuilder) Build(method string, path ...string) (*Request, error) {
	if len(path) > 0 {
		rb.path = strings.Join(path, "/")
	}

	body := rb.requestBody()
	res := rb.client.root.Append(rb.path)

	merger := rb.client.merger
	if rb.autoParameters != nil {
		merger = merger.WithAutoParameters(*rb.autoParameters)
	}

	values := rb.values
	if values == nil && body.ConsumesResourceParameters() {
		// The body only fills segments; its fields are already sent in it.
		values = body.ResourceValues()
		merger = merger.WithAutoParameters(false)
	}

	merged, err := merger.Merge(res, values)
	if err != nil {
		return nil, err
	}
	for _, q := range rb.query {
		merged = merged.WithParameter(q.Name, q.Value)
	}

	req := NewRequest(method, merged, body)
	req.Operation = rb.operation
	req.Header = rb.header.Clone()
	req.UserAgent = rb.userAgent
	req.Credentials = rb.credentials
	req.ArrayFormatter = rb.arrayFormatter
	req.FollowRedirects = rb.followRedirects
	req.MaxRedirects = rb.maxRedirects
	req.Trace = rb.trace
	return req, nil
}

func (rb *RequestBuilder) requestBody() RequestBody {
	if len(rb.files) > 0 || len(rb.fields) > 0 {
		return &fileUploadBody{fields: rb.fields, files: rb.files}
	}
	if rb.body == nil {
		return NoBody()
	}
	return rb.body
}

func (rb *RequestBuilder) send(ctx context.Context, method string, path []string) (*Response, error) {
	req, err := rb.Build(method, path...)
	if err != nil {
		return nil, err
	}
	if rb.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rb.timeout)
		defer cancel()
	}
	return rb.client.runner.Run(ctx, req)
}
