package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o deadline reached" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantVal string
	}{
		{
			name:    "given nil error, then returns empty",
			wantVal: "",
		},
		{
			name:    "given open circuit, then returns circuit_open",
			err:     fmt.Errorf("breaker: %w", ErrCircuitOpen),
			wantVal: ErrorTypeCircuitOpen,
		},
		{
			name:    "given rate limit, then returns rate_limited",
			err:     ErrRateLimited,
			wantVal: ErrorTypeRateLimited,
		},
		{
			name:    "given context cancelled, then returns cancelled",
			err:     context.Canceled,
			wantVal: ErrorTypeCancelled,
		},
		{
			name:    "given canceled pipeline stage, then returns cancelled",
			err:     &CanceledError{Stage: "middleware[0]", Err: context.Canceled},
			wantVal: ErrorTypeCancelled,
		},
		{
			name:    "given deadline at a stage, then returns timeout",
			err:     &CanceledError{Stage: "transport", Err: context.DeadlineExceeded},
			wantVal: ErrorTypeTimeout,
		},
		{
			name:    "given net timeout, then returns timeout",
			err:     &net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}},
			wantVal: ErrorTypeTimeout,
		},
		{
			name:    "given DNS error, then returns dns_error",
			err:     &net.DNSError{Err: "no such host", Name: "api.example.com"},
			wantVal: ErrorTypeDNSError,
		},
		{
			name:    "given TLS record header error, then returns tls_error",
			err:     tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"},
			wantVal: ErrorTypeTLSError,
		},
		{
			name:    "given ECONNREFUSED, then returns connection_refused",
			err:     &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantVal: ErrorTypeConnectionRefused,
		},
		{
			name:    "given ECONNRESET, then returns connection_reset",
			err:     &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
			wantVal: ErrorTypeConnectionReset,
		},
		{
			name:    "given unexpected EOF, then returns eof",
			err:     fmt.Errorf("read body: %w", io.ErrUnexpectedEOF),
			wantVal: ErrorTypeEOF,
		},
		{
			name:    "given timeout in message, then returns timeout",
			err:     errors.New("connection timeout"),
			wantVal: ErrorTypeTimeout,
		},
		{
			name:    "given no such host in message, then returns dns_error",
			err:     errors.New("lookup api.internal: no such host"),
			wantVal: ErrorTypeDNSError,
		},
		{
			name:    "given x509 in message, then returns tls_error",
			err:     errors.New("x509: certificate signed by unknown authority"),
			wantVal: ErrorTypeTLSError,
		},
		{
			name:    "given unknown error, then returns unknown",
			err:     errors.New("some random error"),
			wantVal: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantVal, classifyError(tt.err))
		})
	}
}

func TestErrorTypeFromStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantVal    string
	}{
		{name: "given 200, then returns empty", statusCode: 200, wantVal: ""},
		{name: "given 301, then returns empty", statusCode: 301, wantVal: ""},
		{name: "given 400, then returns status code", statusCode: 400, wantVal: "400"},
		{name: "given 404, then returns status code", statusCode: 404, wantVal: "404"},
		{name: "given 503, then returns status code", statusCode: 503, wantVal: "503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantVal, errorTypeFromStatusCode(tt.statusCode))
		})
	}
}

func TestNetworkTrace_AddEvents(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		trace      *networkTrace
		wantEvents []string
	}{
		{
			name: "given DNS and connection timings, then matching events",
			trace: &networkTrace{
				dnsStart:     now,
				dnsDone:      now.Add(10 * time.Millisecond),
				dnsAddrs:     []string{"192.168.1.1"},
				connectStart: now.Add(10 * time.Millisecond),
				connectDone:  now.Add(20 * time.Millisecond),
				gotConn:      now.Add(20 * time.Millisecond),
			},
			wantEvents: []string{"dns.done", "connect.done", "got_conn"},
		},
		{
			name: "given TLS and first byte, then matching events",
			trace: &networkTrace{
				tlsStart:     now,
				tlsDone:      now.Add(5 * time.Millisecond),
				wroteRequest: now.Add(6 * time.Millisecond),
				firstByte:    now.Add(30 * time.Millisecond),
			},
			wantEvents: []string{"tls.done", "got_first_response_byte"},
		},
		{
			name:  "given empty trace, then no events",
			trace: &networkTrace{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
			defer tp.Shutdown(context.Background())

			_, span := tp.Tracer("test").Start(context.Background(), "test-span")
			tt.trace.addEvents(span)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)

			var names []string
			for _, e := range spans[0].Events {
				names = append(names, e.Name)
			}
			assert.Equal(t, tt.wantEvents, names)
		})
	}
}

func TestNetworkTrace_TraceInfo(t *testing.T) {
	now := time.Now()
	nt := &networkTrace{
		dnsStart:     now,
		dnsDone:      now.Add(3 * time.Millisecond),
		connectStart: now.Add(3 * time.Millisecond),
		connectDone:  now.Add(8 * time.Millisecond),
		wroteRequest: now.Add(9 * time.Millisecond),
		firstByte:    now.Add(29 * time.Millisecond),
		connReused:   true,
		remoteAddr:   "10.0.0.7:443",
	}

	info := nt.traceInfo(40 * time.Millisecond)

	assert.Equal(t, &TraceInfo{
		DNSLookup:  3 * time.Millisecond,
		ConnTime:   5 * time.Millisecond,
		ServerTime: 20 * time.Millisecond,
		TotalTime:  40 * time.Millisecond,
		ConnReused: true,
		RemoteAddr: "10.0.0.7:443",
	}, info)
}

func TestMetrics_RecordNetworkTiming(t *testing.T) {
	now := time.Now()
	nt := &networkTrace{dnsStart: now, dnsDone: now.Add(10 * time.Millisecond)}

	tests := []struct {
		name       string
		nilMetrics bool
		wantMetric string
	}{
		{
			name:       "given metrics, then DNS duration is recorded",
			wantMetric: "http.client.dns.duration",
		},
		{
			name:       "given nil metrics, then nothing happens",
			nilMetrics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer mp.Shutdown(context.Background())

			var m *metrics
			if !tt.nilMetrics {
				var err error
				m, err = newMetrics(mp.Meter("test"))
				require.NoError(t, err)
			}

			assert.NotPanics(t, func() {
				m.recordNetworkTiming(context.Background(), nt, nil)
			})

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(context.Background(), &rm))
			names := metricNames(rm)
			if tt.wantMetric == "" {
				assert.Empty(t, names)
				return
			}
			assert.Contains(t, names, tt.wantMetric)
			assert.NotContains(t, names, "http.client.tls.duration")
		})
	}
}

func metricNames(rm metricdata.ResourceMetrics) []string {
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestNetworkTrace_ClientTrace(t *testing.T) {
	ct := (&networkTrace{}).clientTrace()

	require.NotNil(t, ct)
	assert.NotNil(t, ct.GotConn)
	assert.NotNil(t, ct.DNSStart)
	assert.NotNil(t, ct.DNSDone)
	assert.NotNil(t, ct.ConnectStart)
	assert.NotNil(t, ct.ConnectDone)
	assert.NotNil(t, ct.TLSHandshakeStart)
	assert.NotNil(t, ct.TLSHandshakeDone)
	assert.NotNil(t, ct.WroteRequest)
	assert.NotNil(t, ct.GotFirstResponseByte)
}
