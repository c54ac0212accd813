package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kroma-labs/restkit/httpclient"
	"github.com/kroma-labs/restkit/resource"
	"github.com/redis/go-redis/v9"
)

// Options translates c into client options. A Redis client is created only
// when a shared breaker or a Redis cache asks for one.
func (c *Client) Options() ([]httpclient.Option, error) {
	opts := []httpclient.Option{
		httpclient.WithBaseURL(c.BaseURL),
		httpclient.WithConfig(c.transport()),
		httpclient.WithAutoParameters(c.AutoParameters),
		httpclient.WithRedirects(c.Redirects.Follow, c.Redirects.Max),
		httpclient.WithTracing(c.Tracing),
		httpclient.WithDebug(c.Debug),
		httpclient.WithGenerateCurl(c.GenerateCurl),
	}
	if c.ServiceName != "" {
		opts = append(opts, httpclient.WithServiceName(c.ServiceName))
	}
	if c.UserAgent != "" {
		opts = append(opts, httpclient.WithUserAgent(c.UserAgent))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Headers)) {
		opts = append(opts, httpclient.WithDefaultHeader(name, c.Headers[name]))
	}
	if c.ArrayFormat == "multi" {
		opts = append(opts, httpclient.WithArrayFormatter(resource.MultipleValues))
	}
	if c.Coalesce {
		opts = append(opts, httpclient.WithRequestCoalescing())
	}

	if c.Retry.MaxRetries > 0 {
		rc := httpclient.DefaultRetryConfig()
		rc.MaxRetries = c.Retry.MaxRetries
		rc.InitialInterval = c.Retry.InitialInterval
		rc.MaxInterval = c.Retry.MaxInterval
		rc.MaxElapsedTime = c.Retry.MaxElapsedTime
		opts = append(opts, httpclient.WithRetryConfig(rc))
	}

	if c.RateLimit.RequestsPerSecond > 0 {
		behavior := httpclient.RateLimitWait
		if c.RateLimit.FailFast {
			behavior = httpclient.RateLimitFailFast
		}
		opts = append(opts, httpclient.WithRateLimit(
			httpclient.NewRateLimitConfigWithBehavior(c.RateLimit.RequestsPerSecond, c.RateLimit.Burst, behavior)))
	}

	var rdb redis.UniversalClient
	if c.Redis.Addr != "" && ((c.Breaker.Enabled && c.Breaker.Shared) || (c.Cache.Enabled && c.Cache.Store == "redis")) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
	}

	if c.Breaker.Enabled {
		bc := httpclient.DefaultBreakerConfig()
		if c.Breaker.Shared && rdb != nil {
			bc = httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))
		}
		if c.Breaker.ConsecutiveFailures > 0 {
			bc.ConsecutiveFailures = c.Breaker.ConsecutiveFailures
		}
		if c.Breaker.Timeout > 0 {
			bc.Timeout = c.Breaker.Timeout
		}
		opts = append(opts, httpclient.WithCircuitBreaker(bc))
	}

	if c.Cache.Enabled {
		cc := httpclient.CacheConfig{TTL: c.Cache.TTL}
		if c.Cache.Store == "redis" && rdb != nil {
			cc.Store = httpclient.NewRedisCache(rdb, c.Redis.Prefix)
		}
		opts = append(opts, httpclient.WithCache(cc))
	}

	switch {
	case c.Hedge.Adaptive:
		hc := httpclient.AdaptiveHedgeConfig()
		if c.Hedge.Delay > 0 {
			hc.Delay = c.Hedge.Delay
		}
		if c.Hedge.MaxHedges > 0 {
			hc.MaxHedges = c.Hedge.MaxHedges
		}
		opts = append(opts, httpclient.WithHedging(hc))
	case c.Hedge.Delay > 0 && c.Hedge.MaxHedges > 0:
		opts = append(opts, httpclient.WithHedging(httpclient.HedgeConfig{
			Delay:     c.Hedge.Delay,
			MaxHedges: c.Hedge.MaxHedges,
		}))
	}

	auth, err := c.Auth.authenticator()
	if err != nil {
		return nil, err
	}
	if auth != nil {
		opts = append(opts, httpclient.WithAuthenticator(auth))
	}
	return opts, nil
}

// NewClient builds a client from c. extra options are applied last.
func NewClient(c *Client, extra ...httpclient.Option) (*httpclient.Client, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return httpclient.New(append(opts, extra...)...)
}

func (c *Client) transport() httpclient.Config {
	var hc httpclient.Config
	switch c.Preset {
	case PresetHighThroughput:
		hc = httpclient.HighThroughputConfig()
	case PresetLowLatency:
		hc = httpclient.LowLatencyConfig()
	case PresetConservative:
		hc = httpclient.ConservativeConfig()
	default:
		hc = httpclient.DefaultConfig()
	}
	if c.Timeout > 0 {
		hc.Timeout = c.Timeout
	}
	return hc
}

func (a Auth) authenticator() (httpclient.Authenticator, error) {
	switch a.Type {
	case "", "none":
		return nil, nil
	case "basic":
		return httpclient.BasicAuth(a.Username, a.Password), nil
	case "bearer":
		return httpclient.BearerAuth(a.Token), nil
	case "api_key":
		if a.Query != "" {
			return httpclient.APIKeyQueryAuth(a.Query, a.Key), nil
		}
		return httpclient.APIKeyHeaderAuth(a.Header, a.Key), nil
	case "jwt":
		return httpclient.JWTAuth(httpclient.JWTConfig{
			Key:      []byte(a.Key),
			Issuer:   a.Issuer,
			Subject:  a.Subject,
			Audience: a.Audience,
			TTL:      a.TTL,
			Header:   a.Header,
		})
	default:
		return nil, fmt.Errorf("config: unknown auth type %q", a.Type)
	}
}
