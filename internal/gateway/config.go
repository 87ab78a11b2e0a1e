// Package gateway provides the HTTP server that exposes tabu lists.
package gateway

import (
	"time"
)

// Config holds HTTP gateway configuration.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"` // 1MB

	// MaxBodyBytes is the maximum size of a request body, 0 for no limit
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"` // 1MB

	// Rate limiting configuration
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	// Shutdown timeout for graceful shutdown
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// RateLimitConfig holds per-client rate limiting configuration.
type RateLimitConfig struct {
	// Enabled indicates whether rate limiting is enabled
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// RequestsPerSecond is the number of requests allowed per second across all clients
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"5000"`

	// BurstSize is the maximum burst size across all clients
	BurstSize int `env:"BURST_SIZE" envDefault:"10000"`

	// PerClientRPS is the number of requests a single client may make per second
	PerClientRPS float64 `env:"PER_CLIENT_RPS" envDefault:"1000"`

	// PerClientBurst is the maximum burst size for a single client
	PerClientBurst int `env:"PER_CLIENT_BURST" envDefault:"2000"`

	// ClientTTL is how long an idle client's limiter is kept
	ClientTTL time.Duration `env:"CLIENT_TTL" envDefault:"10m"`
}
