package httpclient

import (
	"net/http"
	"strings"

	"github.com/kroma-labs/restkit/resource"
)

// Request is the logical request of a single call. It is created once by
// the RequestBuilder, passed by pointer through the authenticator and the
// middleware chain, and turned into an *http.Request by the terminal send.
//
// A Request belongs to one in-flight call. Middlewares may mutate it in
// place before calling next.
type Request struct {
	// Method is the HTTP verb, e.g. http.MethodGet.
	Method string

	// Operation is the name given to Client.Request. It is used for
	// logging, span names and metric labels.
	Operation string

	// Resource is the merged resource: no segment tokens remain and its
	// parameters form the query string.
	Resource resource.Resource

	// Header holds request headers in insertion order.
	Header Header

	// Body is the body strategy. Never nil; NoBody() when empty.
	Body RequestBody

	// UserAgent, when set, is sent as the User-Agent header.
	UserAgent string

	// Credentials, when set, are sent as HTTP basic authentication.
	Credentials *Credentials

	// FollowRedirects controls whether 3xx responses are followed.
	FollowRedirects bool

	// MaxRedirects caps followed redirects. Zero means the net/http default.
	MaxRedirects int

	// ArrayFormatter renders array parameters. Nil means comma separated.
	ArrayFormatter resource.ArrayFormatter

	// Trace collects connection timings into Response.TraceInfo.
	Trace bool
}

// Credentials are a username and password for basic authentication.
type Credentials struct {
	Username string
	Password string
}

// NewRequest creates a Request for an already merged resource.
func NewRequest(method string, res resource.Resource, body RequestBody) *Request {
	if body == nil {
		body = NoBody()
	}
	return &Request{
		Method:          strings.ToUpper(method),
		Resource:        res,
		Body:            body,
		FollowRedirects: true,
	}
}

// URL renders the resource and its query string.
func (r *Request) URL() (string, error) {
	return r.Resource.URL(r.ArrayFormatter)
}

// Clone returns a copy whose headers can be changed independently.
// The body strategy is shared.
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if r.Credentials != nil {
		creds := *r.Credentials
		out.Credentials = &creds
	}
	return &out
}

func (r *Request) String() string {
	return r.Method + " " + r.Resource.String()
}

// Header is an ordered list of request headers. Lookups are
// case-insensitive; names are transmitted exactly as added.
// The zero value is empty and ready to use.
type Header struct {
	entries []headerEntry
}

type headerEntry struct {
	name  string
	value string
}

// Add appends a header, keeping any existing values of the same name.
func (h *Header) Add(name, value string) {
	h.entries = append(h.entries, headerEntry{name: name, value: value})
}

// Set replaces every value of name with value. The header keeps the
// position of its first occurrence and the name as given here.
func (h *Header) Set(name, value string) {
	idx := -1
	kept := h.entries[:0]
	for _, e := range h.entries {
		if !strings.EqualFold(e.name, name) {
			kept = append(kept, e)
			continue
		}
		if idx < 0 {
			idx = len(kept)
			kept = append(kept, headerEntry{name: name, value: value})
		}
	}
	h.entries = kept
	if idx < 0 {
		h.Add(name, value)
	}
}

// Get returns the first value of name, or "".
func (h *Header) Get(name string) string {
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return e.value
		}
	}
	return ""
}

// Values returns every value of name in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			out = append(out, e.value)
		}
	}
	return out
}

// Has reports whether name is present.
func (h *Header) Has(name string) bool {
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return true
		}
	}
	return false
}

// Del removes every value of name.
func (h *Header) Del(name string) {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if !strings.EqualFold(e.name, name) {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Len returns the number of header lines.
func (h *Header) Len() int {
	return len(h.entries)
}

// Each calls fn for every header line in insertion order.
func (h *Header) Each(fn func(name, value string)) {
	for _, e := range h.entries {
		fn(e.name, e.value)
	}
}

// Clone returns an independent copy.
func (h Header) Clone() Header {
	if len(h.entries) == 0 {
		return Header{}
	}
	return Header{entries: append([]headerEntry(nil), h.entries...)}
}

// writeTo copies the headers into an http.Header without canonicalizing
// their names.
func (h *Header) writeTo(dst http.Header) {
	for _, e := range h.entries {
		dst[e.name] = append(dst[e.name], e.value)
	}
}
