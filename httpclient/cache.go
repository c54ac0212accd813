package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	_ Middleware    = (*cacheMiddleware)(nil)
	_ ResponseCache = (*MemoryCache)(nil)
	_ ResponseCache = (*RedisCache)(nil)
)

// CachedResponse is the stored form of a response.
type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	RequestURL string      `json:"request_url"`
}

func cachedFrom(resp *Response) *CachedResponse {
	return &CachedResponse{
		StatusCode: resp.statusCode,
		Header:     resp.header.Clone(),
		Body:       resp.body,
		RequestURL: resp.requestURL,
	}
}

func (c *CachedResponse) response() *Response {
	return NewResponse(c.StatusCode, c.Header, c.Body, c.RequestURL)
}

// ResponseCache stores responses by key. A missing key is reported as
// (nil, false, nil).
type ResponseCache interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, entry *CachedResponse, ttl time.Duration) error
}

// CacheConfig configures the response cache middleware.
type CacheConfig struct {
	// Store holds the entries. Nil means a new MemoryCache.
	Store ResponseCache

	// TTL is how long an entry stays fresh. Default 1 minute.
	TTL time.Duration

	// Cacheable decides which status codes are stored. Default: 200 only.
	Cacheable func(statusCode int) bool
}

// DefaultCacheConfig caches 200 responses in memory for one minute.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: time.Minute}
}

type cacheMiddleware struct {
	store     ResponseCache
	ttl       time.Duration
	cacheable func(int) bool
	logger    zerolog.Logger
	metrics   *metrics
	attrs     []attribute.KeyValue
}

// CacheMiddleware answers GET and HEAD requests from cfg.Store while the
// entry is fresh and stores cacheable responses on a miss. A request sending
// Cache-Control: no-cache skips the lookup, and a response sending
// Cache-Control: no-store is never stored.
func CacheMiddleware(cfg CacheConfig) Middleware {
	return newCacheMiddleware(cfg, zerolog.Nop(), nil, nil)
}

func newCacheMiddleware(
	cfg CacheConfig,
	logger zerolog.Logger,
	m *metrics,
	attrs []attribute.KeyValue,
) *cacheMiddleware {
	if cfg.Store == nil {
		cfg.Store = NewMemoryCache()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.Cacheable == nil {
		cfg.Cacheable = func(code int) bool { return code == http.StatusOK }
	}
	return &cacheMiddleware{
		store:     cfg.Store,
		ttl:       cfg.TTL,
		cacheable: cfg.Cacheable,
		logger:    logger,
		metrics:   m,
		attrs:     attrs,
	}
}

func (m *cacheMiddleware) Invoke(ctx context.Context, req *Request, next Next) (*Response, error) {
	if (req.Method != http.MethodGet && req.Method != http.MethodHead) || hasBody(req) {
		return next(ctx, req)
	}
	target, err := req.URL()
	if err != nil {
		return next(ctx, req)
	}
	key := "restkit:cache:" + requestKey(req, target)

	if !hasDirective(req.Header.Get("Cache-Control"), "no-cache") {
		entry, ok, err := m.store.Get(ctx, key)
		if err != nil {
			m.logger.Warn().Err(err).Str("url", target).Msg("response cache lookup failed")
		}
		m.metrics.recordCacheLookup(ctx, ok, m.attrs)
		if ok {
			return entry.response(), nil
		}
	}

	resp, err := next(ctx, req)
	if err != nil {
		return nil, err
	}
	if m.cacheable(resp.StatusCode()) && !hasDirective(resp.Header().Get("Cache-Control"), "no-store") {
		if err := m.store.Set(ctx, key, cachedFrom(resp), m.ttl); err != nil {
			m.logger.Warn().Err(err).Str("url", target).Msg("response cache store failed")
		}
	}
	return resp, nil
}

func hasDirective(cacheControl, directive string) bool {
	for _, d := range strings.Split(cacheControl, ",") {
		if strings.EqualFold(strings.TrimSpace(d), directive) {
			return true
		}
	}
	return false
}

// MemoryCache is an in-process ResponseCache. Expired entries are dropped
// when they are read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   *CachedResponse
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entry *CachedResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: entry, expires: c.now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes every entry.
func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// RedisCache stores responses in Redis as JSON, so every instance of a
// service shares them. Expiry is left to Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a cache whose keys are prefixed with prefix.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithCache(httpclient.CacheConfig{
//	        Store: httpclient.NewRedisCache(rdb, "catalog"),
//	        TTL:   5 * time.Minute,
//	    }),
//	)
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("httpclient: redis cache get: %w", err)
	}

	var entry CachedResponse
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("httpclient: redis cache decode: %w", err)
	}
	return &entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entry *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("httpclient: redis cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("httpclient: redis cache set: %w", err)
	}
	return nil
}
