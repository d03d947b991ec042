// Package config loads the grid server's settings from environment variables.
// Unset values take their defaults and the result is validated on startup so
// misconfiguration fails fast.
package config

import "time"

// Config holds all server configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Lookup    LookupConfig
	Telemetry TelemetryConfig
	Grid      GridConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// LookupConfig holds linked-record editor polling settings.
type LookupConfig struct {
	// Debounce is the interval between search term checks (default: 200ms)
	Debounce time.Duration `env:"LOOKUP_DEBOUNCE" default:"200ms"`

	// RetryAttempts is how often a failed search is tried (default: 3)
	RetryAttempts int `env:"LOOKUP_RETRY_ATTEMPTS" default:"3"`

	// RetryBackoff is the first delay between attempts, doubled each retry (default: 50ms)
	RetryBackoff time.Duration `env:"LOOKUP_RETRY_BACKOFF" default:"50ms"`

	// BaseURL points the editors at a remote lookup endpoint instead of the
	// local database
	BaseURL string `env:"LOOKUP_BASE_URL"`
}

// TelemetryConfig holds usage event settings.
type TelemetryConfig struct {
	// URL receives events by HTTP POST; events are logged when empty
	URL string `env:"TELEMETRY_URL"`

	// PluginVersion is reported with every event (default: 1.0.0)
	PluginVersion string `env:"TELEMETRY_PLUGIN_VERSION" default:"1.0.0"`

	// Buffer is the number of events queued before new ones are dropped (default: 256)
	Buffer int `env:"TELEMETRY_BUFFER" default:"256"`

	// DeliveryTimeout bounds one delivery (default: 5s)
	DeliveryTimeout time.Duration `env:"TELEMETRY_DELIVERY_TIMEOUT" default:"5s"`
}

// GridConfig holds grid definition settings.
type GridConfig struct {
	// DefinitionsFile is the YAML file listing the served grids (default: grids.yaml)
	DefinitionsFile string `env:"GRID_DEFINITIONS_FILE" default:"grids.yaml"`

	// Watch reloads the definitions when the file changes (default: true)
	Watch bool `env:"GRID_WATCH" default:"true"`

	// WatchDebounce collapses bursts of file events (default: 250ms)
	WatchDebounce time.Duration `env:"GRID_WATCH_DEBOUNCE" default:"250ms"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// LookupLimit is requests per minute for lookup endpoints (default: 600)
	LookupLimit int `env:"RATE_LIMIT_LOOKUP" default:"600"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies lists proxy CIDRs whose X-Real-IP and X-Forwarded-For
	// headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys are the accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects API requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
