package httpclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNoSerializers is returned by New when the client has no serializer
	// to encode request bodies with.
	ErrNoSerializers = errors.New("httpclient: no serializers configured")

	// ErrInvalidRoot is returned by New when the root address cannot be used
	// as a resource template.
	ErrInvalidRoot = errors.New("httpclient: invalid root")

	// ErrCanceled marks a call that stopped because its context was done.
	// The concrete error is a *CanceledError that also wraps the context error.
	ErrCanceled = errors.New("httpclient: request canceled")

	// ErrNoResponse is returned when a middleware returns neither a response
	// nor an error.
	ErrNoResponse = errors.New("httpclient: middleware returned no response")

	// ErrAuthentication marks a failure of the configured Authenticator.
	ErrAuthentication = errors.New("httpclient: authentication failed")

	// ErrUnexpectedStatus marks a dispatch contract mismatch. The concrete
	// error is a *StatusCodeError.
	ErrUnexpectedStatus = errors.New("httpclient: unexpected status code")

	// ErrNoDeserializer is returned when a body is unwrapped into a value but
	// no serializer accepts the response content type.
	ErrNoDeserializer = errors.New("httpclient: no deserializer for content type")

	// ErrUnsupportedMediaType is returned when an object body asks for a
	// media type no configured serializer produces.
	ErrUnsupportedMediaType = errors.New("httpclient: no serializer for media type")

	// ErrBodyNotReplayable is returned by middlewares that need to send a
	// request more than once when its body can only be read once.
	ErrBodyNotReplayable = errors.New("httpclient: request body cannot be replayed")

	// ErrTooManyRedirects is returned when a request exceeds its
	// MaxRedirects.
	ErrTooManyRedirects = errors.New("httpclient: too many redirects")
)

// CanceledError reports that a call was canceled before or during a stage
// of the pipeline.
//
// It matches both ErrCanceled and the underlying cause with errors.Is:
//
//	if errors.Is(err, httpclient.ErrCanceled) { ... }
//	if errors.Is(err, context.DeadlineExceeded) { ... }
type CanceledError struct {
	// Stage names where the cancellation was observed, e.g. "middleware[1]"
	// or "transport".
	Stage string

	// Err is the context error or the transport error that carried it.
	Err error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("httpclient: request canceled at %s: %v", e.Stage, e.Err)
}

func (e *CanceledError) Unwrap() []error {
	return []error{ErrCanceled, e.Err}
}

// AuthenticationError wraps the failure of an Authenticator.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return "httpclient: authentication failed: " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() []error {
	return []error{ErrAuthentication, e.Err}
}

// StatusCodeError reports that a response carried a status code other than
// the one the caller declared.
type StatusCodeError struct {
	Expected []int
	Actual   int
	URL      string
}

func (e *StatusCodeError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, code := range e.Expected {
		expected[i] = strconv.Itoa(code)
	}

	msg := fmt.Sprintf(
		"httpclient: expected the status code to be %s but was %d",
		strings.Join(expected, " or "), e.Actual,
	)
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	return msg
}

func (e *StatusCodeError) Unwrap() error {
	return ErrUnexpectedStatus
}
