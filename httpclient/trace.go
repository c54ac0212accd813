package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Values of the error.type attribute for transport failures.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeCircuitOpen       = "circuit_open"
	ErrorTypeRateLimited       = "rate_limited"
	ErrorTypeUnknown           = "unknown"
)

// TraceInfo holds connection timings of a single request. It is filled
// when the request was built with EnableTrace.
type TraceInfo struct {
	// DNSLookup is zero for IP literals and cached lookups.
	DNSLookup time.Duration

	// ConnTime is the TCP connect time. Zero when a pooled connection
	// was reused.
	ConnTime time.Duration

	// TLSHandshake is zero for plain HTTP.
	TLSHandshake time.Duration

	// ServerTime runs from the request being written to the first
	// response byte.
	ServerTime time.Duration

	// TotalTime covers the whole transport round trip.
	TotalTime time.Duration

	ConnReused bool
	RemoteAddr string
}

func (t *TraceInfo) String() string {
	return fmt.Sprintf("dns=%s conn=%s tls=%s server=%s total=%s reused=%t",
		t.DNSLookup, t.ConnTime, t.TLSHandshake, t.ServerTime, t.TotalTime, t.ConnReused)
}

// networkTrace collects httptrace callbacks. The callbacks may run on
// transport goroutines, so every field is guarded by mu.
type networkTrace struct {
	mu sync.Mutex

	dnsStart, dnsDone         time.Time
	connectStart, connectDone time.Time
	tlsStart, tlsDone         time.Time
	gotConn                   time.Time
	wroteRequest              time.Time
	firstByte                 time.Time

	connReused  bool
	connIdle    bool
	remoteAddr  string
	tlsProtocol string
	dnsAddrs    []string
}

func (nt *networkTrace) stamp(t *time.Time) {
	nt.mu.Lock()
	*t = time.Now()
	nt.mu.Unlock()
}

func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			nt.mu.Lock()
			defer nt.mu.Unlock()
			nt.gotConn = time.Now()
			nt.connReused = info.Reused
			nt.connIdle = info.WasIdle
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				nt.remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
		DNSStart: func(httptrace.DNSStartInfo) { nt.stamp(&nt.dnsStart) },
		DNSDone: func(info httptrace.DNSDoneInfo) {
			nt.mu.Lock()
			defer nt.mu.Unlock()
			nt.dnsDone = time.Now()
			nt.dnsAddrs = nt.dnsAddrs[:0]
			for _, addr := range info.Addrs {
				nt.dnsAddrs = append(nt.dnsAddrs, addr.String())
			}
		},
		ConnectStart:      func(_, _ string) { nt.stamp(&nt.connectStart) },
		ConnectDone:       func(_, _ string, _ error) { nt.stamp(&nt.connectDone) },
		TLSHandshakeStart: func() { nt.stamp(&nt.tlsStart) },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.mu.Lock()
			defer nt.mu.Unlock()
			nt.tlsDone = time.Now()
			nt.tlsProtocol = state.NegotiatedProtocol
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { nt.stamp(&nt.wroteRequest) },
		GotFirstResponseByte: func() { nt.stamp(&nt.firstByte) },
	}
}

func elapsed(start, end time.Time) (time.Duration, bool) {
	if start.IsZero() || end.IsZero() {
		return 0, false
	}
	return end.Sub(start), true
}

func (nt *networkTrace) dnsDuration() (time.Duration, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return elapsed(nt.dnsStart, nt.dnsDone)
}

func (nt *networkTrace) connectDuration() (time.Duration, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return elapsed(nt.connectStart, nt.connectDone)
}

func (nt *networkTrace) tlsDuration() (time.Duration, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return elapsed(nt.tlsStart, nt.tlsDone)
}

func (nt *networkTrace) serverDuration() (time.Duration, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return elapsed(nt.wroteRequest, nt.firstByte)
}

func (nt *networkTrace) traceInfo(total time.Duration) *TraceInfo {
	info := &TraceInfo{TotalTime: total}
	info.DNSLookup, _ = nt.dnsDuration()
	info.ConnTime, _ = nt.connectDuration()
	info.TLSHandshake, _ = nt.tlsDuration()
	info.ServerTime, _ = nt.serverDuration()

	nt.mu.Lock()
	info.ConnReused = nt.connReused
	info.RemoteAddr = nt.remoteAddr
	nt.mu.Unlock()
	return info
}

// addEvents records the collected timings as span events.
func (nt *networkTrace) addEvents(s trace.Span) {
	if !s.IsRecording() {
		return
	}
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if d, ok := elapsed(nt.dnsStart, nt.dnsDone); ok {
		s.AddEvent("dns.done", trace.WithTimestamp(nt.dnsDone), trace.WithAttributes(
			attribute.Int64("dns.duration_ms", d.Milliseconds()),
			attribute.StringSlice("dns.addresses", nt.dnsAddrs),
		))
	}
	if d, ok := elapsed(nt.connectStart, nt.connectDone); ok {
		s.AddEvent("connect.done", trace.WithTimestamp(nt.connectDone), trace.WithAttributes(
			attribute.Int64("connect.duration_ms", d.Milliseconds()),
		))
	}
	if d, ok := elapsed(nt.tlsStart, nt.tlsDone); ok {
		s.AddEvent("tls.done", trace.WithTimestamp(nt.tlsDone), trace.WithAttributes(
			attribute.Int64("tls.duration_ms", d.Milliseconds()),
			attribute.String("tls.protocol", nt.tlsProtocol),
		))
	}
	if !nt.gotConn.IsZero() {
		s.AddEvent("got_conn", trace.WithTimestamp(nt.gotConn), trace.WithAttributes(
			attribute.Bool("connection.reused", nt.connReused),
			attribute.Bool("connection.was_idle", nt.connIdle),
			attribute.String("network.peer.address", nt.remoteAddr),
		))
	}
	if d, ok := elapsed(nt.wroteRequest, nt.firstByte); ok {
		s.AddEvent("got_first_response_byte", trace.WithTimestamp(nt.firstByte), trace.WithAttributes(
			attribute.Int64("ttfb_ms", d.Milliseconds()),
		))
	}
}

// classifyError maps an error to an error.type value.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return ErrorTypeRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) {
		return ErrorTypeTLSError
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorTypeConnectionReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorTypeEOF
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(msg, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(msg, "no such host"):
		return ErrorTypeDNSError
	case strings.Contains(msg, "x509"), strings.Contains(msg, "tls:"):
		return ErrorTypeTLSError
	case strings.Contains(msg, "eof"):
		return ErrorTypeEOF
	}
	return ErrorTypeUnknown
}

// errorTypeFromStatusCode follows the OTel convention of using the status
// code itself as error.type for 4xx and 5xx.
func errorTypeFromStatusCode(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

func setSpanError(s trace.Span, err error, errorType string) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		s.SetAttributes(attribute.String("error.type", errorType))
	}
}
