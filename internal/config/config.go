// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the relay's bot credentials, storage, caching and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Relay configuration errors. The process still starts when one of these is
// reported; it answers every webhook with 503 until restarted with a fix.
var (
	ErrMissingBotToken = errors.New("BOT_TOKEN is not set")
	ErrMissingGroupID  = errors.New("GROUP_ID is not set or not a number")
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-relay-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // also bounds webhook dispatch, e.g. 65s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route

	// Relay
	BotToken        string        // BOT_TOKEN
	GroupID         int64         // GROUP_ID, the staff forum supergroup
	MessageLimit    int           // MAX_MESSAGES_PER_MINUTE
	WebhookSecret   string        // WEBHOOK_SECRET, optional
	TelegramAPIURL  string        // TELEGRAM_API_URL
	OutboundTimeout time.Duration // per attempt
	OutboundRetries int           // attempts per outbound call
	WelcomeURL      string        // remote welcome document
	NoticeURL       string        // remote notice appended to thread intros
	VerifiedTTL     time.Duration
	ChallengeTTL    time.Duration

	// Store
	StoreDriver string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Cache / dedup
	CacheTTL      time.Duration
	CacheCapacity int
	DedupCapacity int
	DedupTTL      time.Duration // Redis ledger only
	RedisURL      string        // empty selects the in-process ledger

	// Rate limiting of the webhook endpoint
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// groupIDRaw keeps the unparsed GROUP_ID for ValidateRelay.
	groupIDRaw string

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 65*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Relay
		BotToken:        strings.TrimSpace(getenv("BOT_TOKEN", "")),
		MessageLimit:    getint("MAX_MESSAGES_PER_MINUTE", 40),
		WebhookSecret:   getenv("WEBHOOK_SECRET", ""),
		TelegramAPIURL:  strings.TrimRight(getenv("TELEGRAM_API_URL", "https://api.telegram.org"), "/"),
		OutboundTimeout: getdur("OUTBOUND_TIMEOUT", 5*time.Second),
		OutboundRetries: getint("OUTBOUND_RETRIES", 3),
		WelcomeURL:      getenv("WELCOME_URL", ""),
		NoticeURL:       getenv("NOTICE_URL", ""),
		VerifiedTTL:     getdur("VERIFIED_TTL", 24*time.Hour),
		ChallengeTTL:    getdur("CHALLENGE_TTL", 5*time.Minute),
		groupIDRaw:      strings.TrimSpace(getenv("GROUP_ID", "")),

		// Store
		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", DriverSQLite)),
		DBPath:      getenv("DB_PATH", "relay.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Cache / dedup
		CacheTTL:      getdur("CACHE_TTL", time.Minute),
		CacheCapacity: getint("CACHE_CAPACITY", 10000),
		DedupCapacity: getint("DEDUP_CAPACITY", 1000),
		DedupTTL:      getdur("DEDUP_TTL", 10*time.Minute),
		RedisURL:      getenv("REDIS_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 50.0),
		RateBurst: getint("RATE_BURST", 100),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-relay-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if id, err := strconv.ParseInt(cfg.groupIDRaw, 10, 64); err == nil {
		cfg.GroupID = id
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set for the postgres driver")
		}
	default:
		return cfg, fmt.Errorf("STORE_DRIVER must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if cfg.MessageLimit < 1 {
		return cfg, errors.New("MAX_MESSAGES_PER_MINUTE must be >= 1")
	}
	if cfg.OutboundTimeout <= 0 || cfg.VerifiedTTL <= 0 || cfg.ChallengeTTL <= 0 || cfg.CacheTTL <= 0 {
		return cfg, errors.New("OUTBOUND_TIMEOUT, VERIFIED_TTL, CHALLENGE_TTL and CACHE_TTL must be positive")
	}
	if cfg.OutboundRetries < 1 {
		return cfg, errors.New("OUTBOUND_RETRIES must be >= 1")
	}
	if cfg.CacheCapacity < 1 || cfg.DedupCapacity < 1 {
		return cfg, errors.New("CACHE_CAPACITY and DEDUP_CAPACITY must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ValidateRelay reports whether the bot credentials and staff group are
// usable. It is separate from Load so a misconfigured relay can still serve
// health and metrics while refusing webhooks.
func (c Config) ValidateRelay() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, ErrMissingBotToken)
	}
	if c.GroupID == 0 {
		errs = append(errs, ErrMissingGroupID)
	}
	return errors.Join(errs...)
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
