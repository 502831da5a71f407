package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONTACT_EMAIL", "ops@example.org")
	// Isolate from the developer's environment.
	for _, key := range []string{
		"UNPAYWALL_EMAIL", "CACHE_TTL", "HTTP_CB_FAILS", "MAX_PDF_MB",
		"TRI_CONTRA_TOL_PCT", "WRITE_DRAFT_ON_FAIL", "STRICT_MODE",
		"TAVILY_API_KEY", "BRAVE_API_KEY", "SERPER_API_KEY",
		"SERPAPI_API_KEY", "FRED_API_KEY", "NPS_API_KEY",
		"REDIS_ADDR", "BUNDLE_MIRROR_DIR", "BUNDLE_S3_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ops@example.org", cfg.ContactEmail)
	require.Equal(t, "ops@example.org", cfg.UnpaywallEmail)
	require.Equal(t, 3, cfg.BreakerFails)
	require.Equal(t, 7*24*time.Hour, cfg.CacheTTL)
	require.Equal(t, int64(12)<<20, cfg.MaxPDFBytes)
	require.Equal(t, 35.0, cfg.ContradictTolPct)
	require.True(t, cfg.WriteDraftOnFail)
	require.False(t, cfg.StrictMode)
	require.Empty(t, cfg.APIKeys)
}

func TestLoadRequiresContactEmail(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CONTACT_EMAIL", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CONTACT_EMAIL")
}

func TestLoadValidatesContradictionTolerance(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TRI_CONTRA_TOL_PCT", "150")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAPIKeys(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TAVILY_API_KEY", "tvly-secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.HasKey("tavily"))
	require.Equal(t, "tvly-secret", cfg.Key("Tavily"))
	require.False(t, cfg.HasKey("brave"))
}

func TestLoadDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CACHE_TTL", "3600")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.CacheTTL)

	t.Setenv("CACHE_TTL", "90m")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, cfg.CacheTTL)
}

func TestLoadProviderCircuitOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OECD_CIRCUIT_THRESHOLD", "1")
	t.Setenv("OECD_CIRCUIT_COOLDOWN", "30")

	cfg, err := Load()
	require.NoError(t, err)
	pc, ok := cfg.ProviderCircuits["oecd"]
	require.True(t, ok)
	require.Equal(t, 1, pc.Threshold)
	require.Equal(t, 30*time.Second, pc.Cooldown)

	// IMF keeps the breaker defaults.
	require.Equal(t, cfg.BreakerFails, cfg.ProviderCircuits["imf"].Threshold)
}

func TestWriteDraftOnFailExplicitFalse(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("WRITE_DRAFT_ON_FAIL", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.WriteDraftOnFail)
}
