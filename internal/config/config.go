package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Failure policies applied when the remote rate-limit store is unavailable.
const (
	// FailOpen admits requests while the store is unreachable. This is the default.
	FailOpen = "open"

	// FailClosed rejects requests while the store is unreachable.
	FailClosed = "closed"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"     validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"   validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"       validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"      validate:"required"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// TrustProxyHeaders makes the server take the client address from
	// X-Forwarded-For / X-Real-IP. Only enable behind a trusted proxy, since the
	// rate limiter keys anonymous callers by that address.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"              validate:"required,url"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// AuthConfig contains all authentication settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lte=10080"` // max 7 days
	Issuer               string `mapstructure:"issuer"                 validate:"required"`
	ClockSkewSeconds     int    `mapstructure:"clock_skew_seconds"     validate:"gte=0,lte=300"`
	BcryptCost           int    `mapstructure:"bcrypt_cost"            validate:"gte=4,lte=31"`
}

// TokenLifetime returns the configured token TTL.
func (c AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// ClockSkew returns the leeway applied to token time claims.
func (c AuthConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// RateLimitConfig holds the token bucket policy and the behavior of the
// limiter when the remote store misbehaves.
type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Capacity     int           `mapstructure:"capacity"      validate:"required,gt=0"`
	RefillTokens int           `mapstructure:"refill_tokens" validate:"required,gt=0"`
	RefillPeriod time.Duration `mapstructure:"refill_period" validate:"required,gt=0"`

	// FailurePolicy is FailOpen (default) or FailClosed.
	FailurePolicy string `mapstructure:"failure_policy" validate:"required,oneof=open closed"`

	StoreTimeout    time.Duration `mapstructure:"store_timeout"     validate:"required,gt=0"`
	MaxCASAttempts  int           `mapstructure:"max_cas_attempts"  validate:"required,gt=0,lte=1000"`
	KeyPrefix       string        `mapstructure:"key_prefix"        validate:"required"`
	BreakerFailures int           `mapstructure:"breaker_failures"  validate:"gte=0"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"  validate:"gte=0"`
}

// FailOpen reports whether requests are admitted while the store is unavailable.
func (c RateLimitConfig) FailOpen() bool {
	return c.FailurePolicy != FailClosed
}

// RedisConfig holds the connection parameters of the remote rate-limit store.
type RedisConfig struct {
	Host     string `mapstructure:"host"     validate:"required,hostname_rfc1123|ip"`
	Port     int    `mapstructure:"port"     validate:"required,gt=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       validate:"gte=0"`
	TLS      bool   `mapstructure:"tls"`
}

// Addr returns host:port for the Redis client.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String describes the redis target without the credential.
func (c RedisConfig) String() string {
	return fmt.Sprintf("redis(addr=%s db=%d tls=%t)", c.Addr(), c.DB, c.TLS)
}

// TracingConfig controls span export. Spans are always created so that trace
// IDs reach logs and responses; they are only shipped when OTLPEndpoint is set.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  validate:"required"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" validate:"omitempty,hostname_port"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
}

// ExportEnabled reports whether spans are sent to a collector.
func (c TracingConfig) ExportEnabled() bool {
	return c.OTLPEndpoint != ""
}
