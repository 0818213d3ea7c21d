package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BEACON_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("BEACON_CONFIG", "")
	for _, k := range []string{"BEACON_HTTP_ADDR", "BEACON_PG_DSN", "BEACON_REDIS_ADDR", "BEACON_REDIS_TTL",
		"BEACON_RATE_RPS", "BEACON_RATE_BURST", "BEACON_SEED_DEMO", "BEACON_REQUIRE_PRESCRIPTION", "BEACON_LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "memory", cfg.StoreKind())
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
postgres_dsn: "postgres://beacon@localhost/beacon"
redis_ttl: 2m
seed_demo: true
`), 0o600))
	t.Setenv("BEACON_CONFIG", path)
	t.Setenv("BEACON_HTTP_ADDR", ":9100")
	t.Setenv("BEACON_REQUIRE_PRESCRIPTION", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.RedisTTL)
	assert.True(t, cfg.SeedDemo)
	assert.True(t, cfg.RequirePrescription)
	assert.Equal(t, "postgres", cfg.StoreKind())
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("BEACON_REDIS_ADDR_FROM_FILE=1\n"), 0o600))
	t.Setenv("BEACON_ENV_FILE", envPath)

	_, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "1", os.Getenv("BEACON_REDIS_ADDR_FROM_FILE"))
	_ = os.Unsetenv("BEACON_REDIS_ADDR_FROM_FILE")
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"BEACON_RATE_BURST": "lots",
		"BEACON_REDIS_TTL":  "soon",
		"BEACON_SEED_DEMO":  "maybe",
		"BEACON_LOG_FORMAT": "xml",
		"BEACON_RATE_RPS":   "-1",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
