package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Entitlement backends understood by the service.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// ErrMissingSecret is returned by Load when a signing secret is absent.
var ErrMissingSecret = errors.New("config: signing secret is required")

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string

	RazorpayWebhookSecret string
	RazorpayKeySecret     string

	EntitlementBackend string
	EntitlementRPC     string
	SupabaseURL        string
	SupabaseServiceKey string
	DatabaseURL        string

	RedisURL         string
	CaptureLedgerTTL time.Duration

	VerifyRateLimitMax    int
	VerifyRateLimitWindow time.Duration

	DownstreamTimeout     time.Duration
	DownstreamMaxAttempts int
	DownstreamBackoff     time.Duration
	BreakerMinRequests    int
	BreakerFailureRatio   float64
	BreakerOpenFor        time.Duration

	RequestTimeout time.Duration
	BodyLimitBytes int64
	ShutdownGrace  time.Duration

	Obs Observability
}

// Observability groups logging, metrics, tracing and profiling settings.
type Observability struct {
	LogFormat         string
	LogLevel          string
	MetricsEnabled    bool
	MetricsNamespace  string
	MetricsBucketsMS  string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	TracingSampling   float64
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
	SecurityHeaders   bool
	HSTSEnabled       bool
	ReadyProbeTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
// Missing secrets fail here, at startup, rather than on the first request.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "3000"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		RazorpayWebhookSecret: strings.TrimSpace(k.String("RAZORPAY_WEBHOOK_SECRET")),
		RazorpayKeySecret:     strings.TrimSpace(k.String("RAZORPAY_KEY_SECRET")),

		EntitlementBackend: strings.ToLower(valueOrDefault(k.String("ENTITLEMENT_BACKEND"), BackendSupabase)),
		EntitlementRPC:     valueOrDefault(k.String("ENTITLEMENT_RPC"), "set_premium_status"),
		SupabaseURL:        strings.TrimRight(strings.TrimSpace(k.String("SUPABASE_URL")), "/"),
		SupabaseServiceKey: strings.TrimSpace(k.String("SUPABASE_SERVICE_KEY")),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),

		RedisURL:         strings.TrimSpace(k.String("REDIS_URL")),
		CaptureLedgerTTL: parseDuration(k.String("CAPTURE_LEDGER_TTL"), "72h"),

		VerifyRateLimitMax:    parseInt(k.String("VERIFY_RATE_LIMIT_MAX"), 30),
		VerifyRateLimitWindow: parseDuration(k.String("VERIFY_RATE_LIMIT_WINDOW"), "1m"),

		DownstreamTimeout:     parseDuration(k.String("DOWNSTREAM_TIMEOUT"), "5s"),
		DownstreamMaxAttempts: parseInt(k.String("DOWNSTREAM_MAX_ATTEMPTS"), 3),
		DownstreamBackoff:     parseDuration(k.String("DOWNSTREAM_BACKOFF"), "200ms"),
		BreakerMinRequests:    parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio:   parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:        parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		RequestTimeout: parseDuration(k.String("REQUEST_TIMEOUT"), "15s"),
		BodyLimitBytes: int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		ShutdownGrace:  parseDuration(k.String("SHUTDOWN_GRACE"), "10s"),

		Obs: Observability{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:    parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "paywall"),
			MetricsBucketsMS:  strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingSampling:   parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			PprofEnabled:      parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
			SecurityHeaders:   parseBool(k.String("SECURE_HEADERS_ENABLED"), true),
			HSTSEnabled:       parseBool(k.String("SECURE_HSTS_ENABLED"), false),
			ReadyProbeTimeout: parseDuration(k.String("HEALTH_READY_TIMEOUT"), "500ms"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value required by the selected backend is present.
func (c *Config) Validate() error {
	if c.RazorpayWebhookSecret == "" {
		return fmt.Errorf("%w: RAZORPAY_WEBHOOK_SECRET", ErrMissingSecret)
	}
	if c.RazorpayKeySecret == "" {
		return fmt.Errorf("%w: RAZORPAY_KEY_SECRET", ErrMissingSecret)
	}
	switch c.EntitlementBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported ENTITLEMENT_BACKEND %q", c.EntitlementBackend)
	}
	if strings.TrimSpace(c.EntitlementRPC) == "" {
		return errors.New("ENTITLEMENT_RPC must not be empty")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "3000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RedisEnabled reports whether the optional Redis-backed components should be wired.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
