package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type netError struct {
	msg string
}

func (e *netError) Error() string   { return e.msg }
func (e *netError) Timeout() bool   { return false }
func (e *netError) Temporary() bool { return false }

type mockCircuitBreaker struct {
	mock.Mock
}

func (m *mockCircuitBreaker) Execute(req func() (*Response, error)) (*Response, error) {
	args := m.Called(req)
	if fn, ok := args.Get(0).(func(func() (*Response, error)) (*Response, error)); ok {
		return fn(req)
	}
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func passThrough(req func() (*Response, error)) (*Response, error) { return req() }

func TestBreakerConfigPresets(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint32(20), cfg.FailureThreshold)
	assert.InEpsilon(t, 0.5, cfg.FailureRatio, 0.001)
	assert.Equal(t, uint32(5), cfg.ConsecutiveFailures)
	assert.NotNil(t, cfg.Classifier)
	assert.Nil(t, cfg.Store)

	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	dist := DistributedBreakerConfig(store)
	assert.Equal(t, store, dist.Store)
	assert.Equal(t, cfg.Interval, dist.Interval)
}

func TestBreakerConfig_ReadyToTrip(t *testing.T) {
	tests := []struct {
		name   string
		cfg    BreakerConfig
		counts gobreaker.Counts
		want   bool
	}{
		{
			name:   "given consecutive failures reached, then trips",
			cfg:    DefaultBreakerConfig(),
			counts: gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5},
			want:   true,
		},
		{
			name:   "given too few requests, then the ratio is ignored",
			cfg:    DefaultBreakerConfig(),
			counts: gobreaker.Counts{Requests: 10, TotalFailures: 8, ConsecutiveFailures: 2},
		},
		{
			name:   "given the ratio over the threshold, then trips",
			cfg:    DefaultBreakerConfig(),
			counts: gobreaker.Counts{Requests: 20, TotalFailures: 10, ConsecutiveFailures: 1},
			want:   true,
		},
		{
			name:   "given the ratio below, then stays closed",
			cfg:    DefaultBreakerConfig(),
			counts: gobreaker.Counts{Requests: 40, TotalFailures: 10, ConsecutiveFailures: 1},
		},
		{
			name:   "given no rules, then never trips",
			cfg:    BreakerConfig{},
			counts: gobreaker.Counts{Requests: 100, TotalFailures: 100, ConsecutiveFailures: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.readyToTrip(tt.counts))
		})
	}
}

func TestDefaultBreakerClassifier(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		err  error
		want bool
	}{
		{name: "given 200, then success", resp: responseWithStatus(http.StatusOK)},
		{name: "given 429, then success", resp: responseWithStatus(http.StatusTooManyRequests)},
		{name: "given 503, then failure", resp: responseWithStatus(http.StatusServiceUnavailable), want: true},
		{name: "given net error, then failure", err: &netError{msg: "broken pipe"}, want: true},
		{name: "given ECONNREFUSED, then failure", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "given an application error, then success", err: errors.New("validation failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultBreakerClassifier(tt.resp, tt.err))
		})
	}
}

func TestBreakerMiddleware_Invoke(t *testing.T) {
	errApp := errors.New("validation failed")

	tests := []struct {
		name       string
		mockFn     func(cb *mockCircuitBreaker)
		terminal   Next
		wantStatus int
		wantErr    error
	}{
		{
			name:       "given a success, then the response is returned",
			mockFn:     func(cb *mockCircuitBreaker) { cb.On("Execute", mock.Anything).Return(passThrough, nil).Once() },
			terminal:   statusTerminal(http.StatusOK),
			wantStatus: http.StatusOK,
		},
		{
			name:       "given a 500, then the response is still returned",
			mockFn:     func(cb *mockCircuitBreaker) { cb.On("Execute", mock.Anything).Return(passThrough, nil).Once() },
			terminal:   statusTerminal(http.StatusInternalServerError),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "given an open circuit, then ErrCircuitOpen",
			mockFn: func(cb *mockCircuitBreaker) {
				cb.On("Execute", mock.Anything).Return(nil, gobreaker.ErrOpenState).Once()
			},
			wantErr: ErrCircuitOpen,
		},
		{
			name: "given too many half-open probes, then ErrCircuitOpen",
			mockFn: func(cb *mockCircuitBreaker) {
				cb.On("Execute", mock.Anything).Return(nil, gobreaker.ErrTooManyRequests).Once()
			},
			wantErr: ErrCircuitOpen,
		},
		{
			name:   "given a network error, then it is returned",
			mockFn: func(cb *mockCircuitBreaker) { cb.On("Execute", mock.Anything).Return(passThrough, nil).Once() },
			terminal: func(context.Context, *Request) (*Response, error) {
				return nil, &netError{msg: "network error"}
			},
			wantErr: &netError{msg: "network error"},
		},
		{
			name:   "given an error the classifier ignores, then it is unwrapped",
			mockFn: func(cb *mockCircuitBreaker) { cb.On("Execute", mock.Anything).Return(passThrough, nil).Once() },
			terminal: func(context.Context, *Request) (*Response, error) {
				return nil, errApp
			},
			wantErr: errApp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := &mockCircuitBreaker{}
			tt.mockFn(cb)
			mw := &breakerMiddleware{breaker: cb, classifier: DefaultBreakerClassifier, name: "catalog"}

			resp, err := mw.Invoke(context.Background(), newTestRequest(), tt.terminal)

			cb.AssertExpectations(t)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, resp)
				var ne *netError
				if errors.As(tt.wantErr, &ne) {
					assert.Equal(t, tt.wantErr.Error(), err.Error())
					assert.NotErrorIs(t, err, errSyntheticFailure)
					return
				}
				assert.ErrorIs(t, err, tt.wantErr)
				var pass *passThroughError
				assert.False(t, errors.As(err, &pass))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode())
		})
	}
}

func statusTerminal(status int) Next {
	return func(context.Context, *Request) (*Response, error) {
		return responseWithStatus(status), nil
	}
}

func TestBreakerMiddleware_Trips(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) gobreaker.SharedDataStore
	}{
		{
			name:  "given a local breaker, then consecutive 5xx open the circuit",
			store: func(*testing.T) gobreaker.SharedDataStore { return nil },
		},
		{
			name: "given a Redis backed breaker, then consecutive 5xx open the circuit",
			store: func(t *testing.T) gobreaker.SharedDataStore {
				mr := miniredis.RunT(t)
				return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var transitions []gobreaker.State
			cfg := DefaultBreakerConfig()
			cfg.Name = "trip-" + t.Name()
			cfg.ConsecutiveFailures = 3
			cfg.Timeout = time.Minute
			cfg.Store = tt.store(t)
			cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
				transitions = append(transitions, to)
			}

			mt := NewMockTransport().StubResponse(http.StatusBadGateway, "")
			c := newMockClient(t, mt, WithCircuitBreaker(cfg))

			for range 3 {
				resp, err := c.Request("Flaky").Get(context.Background(), "flaky")
				require.NoError(t, err)
				assert.Equal(t, http.StatusBadGateway, resp.StatusCode())
			}

			_, err := c.Request("Flaky").Get(context.Background(), "flaky")

			assert.ErrorIs(t, err, ErrCircuitOpen)
			assert.ErrorIs(t, err, gobreaker.ErrOpenState)
			assert.Equal(t, 3, mt.RequestCount())
			assert.Contains(t, transitions, gobreaker.StateOpen)
		})
	}
}

func TestBreakerMiddleware_CanceledCallsAreExcluded(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 1
	mw := BreakerMiddleware(cfg)

	canceled := func(context.Context, *Request) (*Response, error) {
		return nil, &CanceledError{Stage: "transport", Err: context.Canceled}
	}
	for range 3 {
		_, err := mw.Invoke(context.Background(), newTestRequest(), canceled)
		assert.ErrorIs(t, err, ErrCanceled)
	}

	resp, err := mw.Invoke(context.Background(), newTestRequest(), statusTerminal(http.StatusOK))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}
