// Package config loads client settings from a YAML file, a .env file and
// the environment, validates them and turns them into httpclient options.
//
// A minimal config.yml:
//
//	base_url: https://api.example.com
//	service_name: catalog
//	preset: low_latency
//	retry:
//	  max_retries: 3
//	auth:
//	  type: bearer
//
// Every key can be overridden by an environment variable made of the
// prefix and the upper-cased key path, e.g. CATALOG_AUTH_TOKEN or
// CATALOG_RETRY_MAX_RETRIES.
package config

import "time"

// Presets accepted by Client.Preset.
const (
	PresetDefault        = "default"
	PresetHighThroughput = "high_throughput"
	PresetLowLatency     = "low_latency"
	PresetConservative   = "conservative"
)

// Client is the file and environment form of a client configuration.
type Client struct {
	BaseURL     string `mapstructure:"base_url"     validate:"required,url"`
	ServiceName string `mapstructure:"service_name"`
	UserAgent   string `mapstructure:"user_agent"`

	// Preset selects the transport settings; Timeout overrides its timeout.
	Preset  string        `mapstructure:"preset"  validate:"omitempty,oneof=default high_throughput low_latency conservative"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	Headers map[string]string `mapstructure:"headers"`

	// ArrayFormat is "comma" (name=a,b) or "multi" (name=a&name=b).
	ArrayFormat    string `mapstructure:"array_format"    validate:"omitempty,oneof=comma multi"`
	AutoParameters bool   `mapstructure:"auto_parameters"`

	Debug        bool `mapstructure:"debug"`
	GenerateCurl bool `mapstructure:"generate_curl"`
	Tracing      bool `mapstructure:"tracing"`
	Coalesce     bool `mapstructure:"coalesce"`

	Redirects Redirects `mapstructure:"redirects"`
	Retry     Retry     `mapstructure:"retry"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Breaker   Breaker   `mapstructure:"breaker"`
	Cache     Cache     `mapstructure:"cache"`
	Hedge     Hedge     `mapstructure:"hedge"`
	Redis     Redis     `mapstructure:"redis"`
	Auth      Auth      `mapstructure:"auth"`
}

type Redirects struct {
	Follow bool `mapstructure:"follow"`
	Max    int  `mapstructure:"max" validate:"gte=0"`
}

// Retry is disabled while MaxRetries is zero.
type Retry struct {
	MaxRetries      uint          `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval"     validate:"gte=0"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" validate:"gte=0"`
}

// RateLimit is disabled while RequestsPerSecond is zero.
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst"               validate:"gte=0"`
	FailFast          bool    `mapstructure:"fail_fast"`
}

type Breaker struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// Shared keeps the breaker state in Redis so every instance trips
	// together. It requires redis.addr.
	Shared bool `mapstructure:"shared"`
}

type Cache struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"   validate:"gte=0"`
	Store   string        `mapstructure:"store" validate:"omitempty,oneof=memory redis"`
}

type Hedge struct {
	Delay     time.Duration `mapstructure:"delay"      validate:"gte=0"`
	MaxHedges int           `mapstructure:"max_hedges" validate:"gte=0"`
	Adaptive  bool          `mapstructure:"adaptive"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"     validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       validate:"gte=0"`
	Prefix   string `mapstructure:"prefix"`
}

// Auth selects one authenticator by Type.
type Auth struct {
	Type string `mapstructure:"type" validate:"omitempty,oneof=none basic bearer api_key jwt"`

	Username string `mapstructure:"username" validate:"required_if=Type basic"`
	Password string `mapstructure:"password"`

	Token string `mapstructure:"token" validate:"required_if=Type bearer"`

	// Key is the API key, or the HMAC secret for jwt.
	Key string `mapstructure:"key" validate:"required_if=Type api_key,required_if=Type jwt"`

	// Header carries the API key or the JWT; Query sends the API key as a
	// query parameter instead.
	Header string `mapstructure:"header"`
	Query  string `mapstructure:"query"`

	Issuer   string        `mapstructure:"issuer"`
	Subject  string        `mapstructure:"subject"`
	Audience []string      `mapstructure:"audience"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// defaults are applied before the file and the environment. Every key of
// Client is listed so environment variables can reach it.
var defaults = map[string]any{
	"base_url":     "",
	"service_name": "",
	"user_agent":   "",
	"preset":       PresetDefault,
	"timeout":      time.Duration(0),
	"headers":      map[string]string{},

	"array_format":    "comma",
	"auto_parameters": true,

	"debug":         false,
	"generate_curl": false,
	"tracing":       true,
	"coalesce":      false,

	"redirects.follow": true,
	"redirects.max":    0,

	"retry.max_retries":      0,
	"retry.initial_interval": 500 * time.Millisecond,
	"retry.max_interval":     30 * time.Second,
	"retry.max_elapsed_time": 2 * time.Minute,

	"rate_limit.requests_per_second": 0.0,
	"rate_limit.burst":               10,
	"rate_limit.fail_fast":           false,

	"breaker.enabled":              false,
	"breaker.consecutive_failures": 5,
	"breaker.timeout":              10 * time.Second,
	"breaker.shared":               false,

	"cache.enabled": false,
	"cache.ttl":     time.Minute,
	"cache.store":   "memory",

	"hedge.delay":      time.Duration(0),
	"hedge.max_hedges": 0,
	"hedge.adaptive":   false,

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.prefix":   "restkit",

	"auth.type":     "none",
	"auth.username": "",
	"auth.password": "",
	"auth.token":    "",
	"auth.key":      "",
	"auth.header":   "",
	"auth.query":    "",
	"auth.issuer":   "",
	"auth.subject":  "",
	"auth.audience": []string{},
	"auth.ttl":      5 * time.Minute,
}
