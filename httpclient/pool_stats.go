package httpclient

import (
	"net/http"
	"time"
)

// PoolStats is a snapshot of the connection pool settings in effect.
type PoolStats struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int

	// MaxConnsPerHost is zero when unlimited.
	MaxConnsPerHost int

	IdleConnTimeout   time.Duration
	DisableKeepAlives bool
}

// PoolStats reports the pool of the transport built from Config. ok is
// false when a custom transport that is not an *http.Transport was set
// with WithTransport.
func (c *Client) PoolStats() (stats PoolStats, ok bool) {
	transport, ok := c.transport.(*http.Transport)
	if !ok {
		return PoolStats{}, false
	}
	return PoolStats{
		MaxIdleConns:        transport.MaxIdleConns,
		MaxIdleConnsPerHost: transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:     transport.MaxConnsPerHost,
		IdleConnTimeout:     transport.IdleConnTimeout,
		DisableKeepAlives:   transport.DisableKeepAlives,
	}, true
}
