package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// RetryClassifier decides whether an attempt should be retried. It sees
// the response of the attempt, or the error that replaced it.
//
// Example, retry every 5xx:
//
//	httpclient.WithRetryClassifier(func(resp *httpclient.Response, err error) bool {
//	    if resp != nil && resp.StatusCode() >= 500 {
//	        return true
//	    }
//	    return httpclient.DefaultClassifier(resp, err)
//	})
type RetryClassifier func(resp *Response, err error) bool

// DefaultClassifier retries transient failures only.
//
// Retries on:
//   - network errors such as timeouts, refused or reset connections
//   - 429, 502, 503 and 504
//
// Never retries on:
//   - cancellation, authentication failures or merge errors
//   - TLS certificate errors and unknown hosts
//   - any other status code
func DefaultClassifier(resp *Response, err error) bool {
	if err != nil {
		if errors.Is(err, ErrCanceled) ||
			errors.Is(err, ErrAuthentication) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if isPermanentError(err) {
			return false
		}
		return isRetryableNetworkError(err)
	}

	if resp != nil {
		return isRetryableStatusCode(resp.StatusCode())
	}
	return false
}

// StatusCodeClassifier retries the given status codes and transient
// network errors.
//
//	classifier := httpclient.StatusCodeClassifier(500, 502, 503, 504)
func StatusCodeClassifier(codes ...int) RetryClassifier {
	codeSet := make(map[int]bool, len(codes))
	for _, code := range codes {
		codeSet[code] = true
	}

	return func(resp *Response, err error) bool {
		if err != nil {
			return !errors.Is(err, ErrCanceled) && !isPermanentError(err) && isRetryableNetworkError(err)
		}
		return resp != nil && codeSet[resp.StatusCode()]
	}
}

// NeverRetryClassifier never retries.
func NeverRetryClassifier() RetryClassifier {
	return func(*Response, error) bool { return false }
}

func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return containsPattern(err, transientPatterns)
}

func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	return containsPattern(err, permanentPatterns)
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"network is down",
	"network unreachable",
	"i/o timeout",
	"temporary failure",
	"server closed",
	"broken pipe",
	"eof",
}

var permanentPatterns = []string{
	"x509:",
	"certificate",
	"tls:",
	"no route to host",
	"permission denied",
}

// containsPattern is the fallback for wrapped errors whose types were lost.
func containsPattern(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
