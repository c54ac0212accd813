package httpclient

import (
	"time"
)

// RetryConfig controls the retry middleware. Start from DefaultRetryConfig
// and adjust fields as needed:
//
//	cfg := httpclient.DefaultRetryConfig()
//	cfg.MaxRetries = 5
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithRetryConfig(cfg),
//	)
//
// Only requests whose body can be sent twice are retried. Streamed file
// uploads are attempted once.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	// Zero disables retries.
	MaxRetries uint

	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps a single wait.
	MaxInterval time.Duration

	// MaxElapsedTime bounds the whole retry sequence. Zero means only
	// MaxRetries applies.
	MaxElapsedTime time.Duration

	// Multiplier grows the wait after each retry.
	Multiplier float64

	// JitterFactor randomizes each wait by ±JitterFactor, between 0 and 1.
	JitterFactor float64
}

// Default values for RetryConfig.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	DefaultMaxElapsedTime  = 2 * time.Minute
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.5
)

// DefaultRetryConfig retries 3 times starting at 500ms, doubling up to 30s,
// within a 2 minute budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// AggressiveRetryConfig retries 5 times starting at 200ms within a
// 5 minute budget. Use it for idempotent calls that must succeed.
func AggressiveRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// ConservativeRetryConfig retries twice starting at 1s within 30s.
// Use it for rate-limited or expensive upstreams.
func ConservativeRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// NoRetryConfig disables retries.
func NoRetryConfig() RetryConfig {
	return RetryConfig{}
}

// IsEnabled reports whether at least one retry is allowed.
func (c RetryConfig) IsEnabled() bool {
	return c.MaxRetries > 0
}
