// Package config loads pipeline configuration from the environment, with
// optional .env support for local development. Configuration is read once at
// startup; a missing required value fails fast before the run starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the pipeline reads from the environment.
type Config struct {
	// Identity
	ContactEmail   string // mailto in identity headers; required by several upstreams
	UnpaywallEmail string // required by the OA resolver; falls back to ContactEmail

	// HTTP substrate
	CacheDir        string
	CacheTTL        time.Duration
	BreakerFails    int           // HTTP_CB_FAILS
	BreakerReset    time.Duration // HTTP_CB_RESET
	MaxPDFBytes     int64         // MAX_PDF_MB
	PDFMaxPages     int
	PDFRetries      int
	HostMinInterval time.Duration
	MaxConcurrency  int

	// Triangulation tuning
	ParaphraseThreshold float64 // TRI_PARA_THRESHOLD, 0 = adaptive
	ContradictTolPct    float64 // TRI_CONTRA_TOL_PCT

	// Gate behavior
	StrictMode            bool
	WriteDraftOnFail      bool
	GatesProfile          string
	LenientRecoveryOnFail bool

	// Paid provider keys; empty means the provider is not credentialed.
	APIKeys map[string]string

	// Per-provider circuit overrides (OECD_*, IMF_*).
	ProviderCircuits map[string]ProviderCircuit

	// Fleet / export
	RedisAddr    string
	MirrorDir    string // local bundle mirror; ignored when S3Bucket is set
	S3Bucket     string
	S3Region     string
	OTLPEndpoint string
	OTELEnabled  bool
}

// ProviderCircuit tunes a single provider's circuit breaker and cache TTL.
type ProviderCircuit struct {
	Threshold int
	Cooldown  time.Duration
	CacheTTL  time.Duration
}

// keyedProviders are the providers that only run with an API key configured.
var keyedProviders = []string{"TAVILY", "BRAVE", "SERPER", "SERPAPI", "FRED", "NPS"}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ContactEmail:    os.Getenv("CONTACT_EMAIL"),
		UnpaywallEmail:  os.Getenv("UNPAYWALL_EMAIL"),
		CacheDir:        envOr("CACHE_DIR", defaultCacheDir()),
		CacheTTL:        envDuration("CACHE_TTL", 7*24*time.Hour),
		BreakerFails:    envInt("HTTP_CB_FAILS", 3),
		BreakerReset:    envDuration("HTTP_CB_RESET", 900*time.Second),
		MaxPDFBytes:     int64(envInt("MAX_PDF_MB", 12)) << 20,
		PDFMaxPages:     envInt("PDF_MAX_PAGES", 6),
		PDFRetries:      envInt("PDF_RETRIES", 2),
		HostMinInterval: envDuration("HOST_MIN_INTERVAL", 800*time.Millisecond),
		MaxConcurrency:  envInt("MAX_CONCURRENCY", 32),

		ParaphraseThreshold: envFloat("TRI_PARA_THRESHOLD", 0),
		ContradictTolPct:    envFloat("TRI_CONTRA_TOL_PCT", 35),

		StrictMode:            envBool("STRICT_MODE"),
		WriteDraftOnFail:      envBoolDefault("WRITE_DRAFT_ON_FAIL", true),
		GatesProfile:          os.Getenv("GATES_PROFILE"),
		LenientRecoveryOnFail: envBool("LENIENT_RECOVERY_ON_FAIL"),

		APIKeys:          make(map[string]string),
		ProviderCircuits: make(map[string]ProviderCircuit),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		MirrorDir:    os.Getenv("BUNDLE_MIRROR_DIR"),
		S3Bucket:     os.Getenv("BUNDLE_S3_BUCKET"),
		S3Region:     envOr("BUNDLE_S3_REGION", "us-east-1"),
		OTLPEndpoint: envOr("OTLP_ENDPOINT", "localhost:4317"),
		OTELEnabled:  envBool("OTEL_ENABLED"),
	}

	if cfg.ContactEmail == "" {
		return nil, fmt.Errorf("CONTACT_EMAIL is required: upstreams demand an operator contact in the User-Agent")
	}
	if cfg.UnpaywallEmail == "" {
		cfg.UnpaywallEmail = cfg.ContactEmail
	}
	if cfg.BreakerFails < 1 {
		return nil, fmt.Errorf("HTTP_CB_FAILS must be >= 1, got %d", cfg.BreakerFails)
	}
	if cfg.MaxPDFBytes <= 0 {
		return nil, fmt.Errorf("MAX_PDF_MB must be positive")
	}
	if cfg.ContradictTolPct <= 0 || cfg.ContradictTolPct >= 100 {
		return nil, fmt.Errorf("TRI_CONTRA_TOL_PCT must be in (0,100), got %v", cfg.ContradictTolPct)
	}

	for _, name := range keyedProviders {
		if key := os.Getenv(name + "_API_KEY"); key != "" {
			cfg.APIKeys[strings.ToLower(name)] = key
		}
	}

	for _, name := range []string{"OECD", "IMF"} {
		pc := ProviderCircuit{
			Threshold: envInt(name+"_CIRCUIT_THRESHOLD", cfg.BreakerFails),
			Cooldown:  envDuration(name+"_CIRCUIT_COOLDOWN", cfg.BreakerReset),
			CacheTTL:  envDuration(name+"_CACHE_TTL", cfg.CacheTTL),
		}
		cfg.ProviderCircuits[strings.ToLower(name)] = pc
	}

	return cfg, nil
}

// HasKey reports whether a paid provider is credentialed.
func (c *Config) HasKey(provider string) bool {
	return c.APIKeys[strings.ToLower(provider)] != ""
}

// Key returns the API key for a paid provider, empty if not configured.
func (c *Config) Key(provider string) string {
	return c.APIKeys[strings.ToLower(provider)]
}

func defaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return base + "/triangulate"
	}
	return ".triangulate-cache"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// envDuration accepts either a bare number of seconds or a Go duration string.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return envBool(key)
}
