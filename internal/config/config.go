package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickwarner/adbeacon/internal/adrequest"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	Environment  string
	// SessionCookie names the host session cookie whose value is hashed into t.
	SessionCookie string

	// Ad request defaults
	PublisherID  string
	AnalyticsID  string
	Encoding     string
	Timeout      time.Duration
	RaiseOnError bool
	CookieDomain string
	CookiePath   string
	Test         bool
	Endpoint     string
	PixelURL     string

	// Sandbox configuration
	SandboxPort   string
	RedisAddr     string
	SandboxTTL    time.Duration
	SandboxMarkup string

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8080")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "adbeacon")
	cfg.Environment = strings.ToLower(getenv("ENV", "production"))
	cfg.SessionCookie = getenv("SESSION_COOKIE", "sessionid")

	cfg.PublisherID = os.Getenv("ADMOB_PUBLISHER_ID")
	cfg.AnalyticsID = os.Getenv("ADMOB_ANALYTICS_ID")
	cfg.Encoding = os.Getenv("ADMOB_ENCODING")
	cfg.Timeout = envDuration("ADMOB_TIMEOUT", adrequest.DefaultTimeout)
	cfg.RaiseOnError = envBool("ADMOB_RAISE_ON_ERROR", false)
	cfg.CookieDomain = os.Getenv("ADMOB_COOKIE_DOMAIN")
	cfg.CookiePath = getenv("ADMOB_COOKIE_PATH", "/")
	// test requests by default when the host runs in its test environment
	cfg.Test = envBool("ADMOB_TEST", cfg.Environment == "test")
	cfg.Endpoint = getenv("ADMOB_ENDPOINT", adrequest.Endpoint)
	cfg.PixelURL = getenv("ADMOB_PIXEL_URL", adrequest.PixelURL)

	cfg.SandboxPort = getenv("SANDBOX_PORT", "8090")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.SandboxTTL = envDuration("SANDBOX_TTL", 24*time.Hour)
	cfg.SandboxMarkup = getenv("SANDBOX_MARKUP", `<a href="http://example.com/">Sandbox ad</a>`)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// AdDefaults returns the process-wide ad request defaults.
func (c Config) AdDefaults() adrequest.Defaults {
	return adrequest.Configure(func(d *adrequest.Defaults) {
		d.PublisherID = c.PublisherID
		d.AnalyticsID = c.AnalyticsID
		d.Encoding = c.Encoding
		d.Timeout = c.Timeout
		d.RaiseOnError = c.RaiseOnError
		d.CookieDomain = c.CookieDomain
		d.CookiePath = c.CookiePath
		d.Test = c.Test
	})
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "1.5s") or a number of seconds,
// fractional values included. If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
