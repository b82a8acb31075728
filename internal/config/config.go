package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/layout-engine/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port               string
	DatabaseURL        string
	DBStatementTimeout time.Duration
	// Admin API token for gating mutating endpoints (Bearer token)
	AdminAPIToken string
	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	CORSAllowedOrigins   []string // allowed CORS origins
	EnableRateLimit      bool     // enable rate limiting middleware
	// Response cache settings
	CacheMaxBytes int64 // response cache capacity in bytes
	CacheTTL      time.Duration
	// Layout iteration settings
	LayoutMaxNodes   int           // maximum nodes to include in layout computation
	LayoutIterations int           // number of force-directed iterations
	LayoutBatchSize  int           // batch size for position updates
	LayoutInterval   time.Duration // background job period
	DisableLayoutJob bool
	RepulsionScale   float64 // multiplier on engine repulsive forces
	IdealEdgeLength  float64 // rest length of the attractive springs
	// Force engine settings
	EnginePrecision int    // expansion truncation order (0 = engine default)
	EngineLeafSize  int    // particles kept together in one quadtree leaf
	EngineMinDirect int    // below this node count the exact method is used
	EngineStrategy  string // tree construction strategy: path or subtree
	EngineSeed      int64  // center-jitter seed; 0 derives one per run
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}
	cached = &Config{
		Port:               port,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBStatementTimeout: time.Duration(utils.GetEnvAsInt("DB_STATEMENT_TIMEOUT_MS", 25000)) * time.Millisecond,
		AdminAPIToken:      strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		CacheMaxBytes:        int64(utils.GetEnvAsInt("CACHE_MAX_BYTES", 64<<20)),
		CacheTTL:             time.Duration(utils.GetEnvAsInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		// Layout iteration: sensible defaults for force-directed layout
		LayoutMaxNodes:   utils.GetEnvAsInt("LAYOUT_MAX_NODES", 5000),
		LayoutIterations: utils.GetEnvAsInt("LAYOUT_ITERATIONS", 400),
		LayoutBatchSize:  utils.GetEnvAsInt("LAYOUT_BATCH_SIZE", 5000),
		LayoutInterval:   time.Duration(utils.GetEnvAsInt("LAYOUT_INTERVAL_MIN", 30)) * time.Minute,
		DisableLayoutJob: utils.GetEnvAsBool("DISABLE_LAYOUT_JOB", false),
		RepulsionScale:   utils.GetEnvAsFloat("LAYOUT_REPULSION_SCALE", 1.0),
		IdealEdgeLength:  utils.GetEnvAsFloat("LAYOUT_IDEAL_EDGE_LENGTH", 30.0),
		// Force engine: zero values defer to the engine defaults
		EnginePrecision: utils.GetEnvAsInt("ENGINE_PRECISION", 0),
		EngineLeafSize:  utils.GetEnvAsInt("ENGINE_LEAF_SIZE", 0),
		EngineMinDirect: utils.GetEnvAsInt("ENGINE_MIN_DIRECT", 0),
		EngineStrategy:  strings.ToLower(strings.TrimSpace(os.Getenv("ENGINE_STRATEGY"))),
		EngineSeed:      int64(utils.GetEnvAsInt("ENGINE_SEED", 0)),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.EngineStrategy == "" {
		cached.EngineStrategy = "path"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}

	// Parse CORS allowed origins
	corsOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if corsOrigins == "" {
		// Default to common development origins
		cached.CORSAllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	} else {
		origins := strings.Split(corsOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cached.CORSAllowedOrigins = utils.UniqueStrings(origins)
	}

	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
