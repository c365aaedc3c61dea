package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.DB.User = "alignd"
	cfg.Security.TokenKey = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DB.User = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Security.TokenKey = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Worker.SoftTimeLimit = cfg.Worker.HardTimeLimit + time.Minute
	assert.Error(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 9999,
		"db": {"user": "alignd", "host": "db.internal"},
		"security": {"token_key": "secret"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	// Untouched fields keep their defaults.
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.Equal(t, "ALIGNMENT", cfg.Queue.Stream)
	assert.Equal(t, 30*time.Minute, cfg.Worker.HardTimeLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ALIGND_PORT", "9999")
	t.Setenv("ALIGND_DB_USER", "alignd")
	t.Setenv("ALIGND_DB_HOST", "db.internal")
	t.Setenv("ALIGND_SECURITY_TOKEN_KEY", "secret")
	t.Setenv("ALIGND_WORKER_HARD_TIME_LIMIT", "45m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "alignd", cfg.DB.User)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "secret", cfg.Security.TokenKey)
	assert.Equal(t, 45*time.Minute, cfg.Worker.HardTimeLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.Equal(t, "ALIGNMENT", cfg.Queue.Stream)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 1234,
		"db": {"user": "alignd"},
		"security": {"token_key": "secret"}
	}`), 0o644))
	t.Setenv("ALIGND_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "alignd", cfg.DB.User)
}

func TestLoadDurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"db": {"user": "alignd"},
		"security": {"token_key": "secret"},
		"mirror": {"timeout": "2m"},
		"worker": {"hard_time_limit": "40m", "soft_time_limit": "35m"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Mirror.Timeout)
	assert.Equal(t, 40*time.Minute, cfg.Worker.HardTimeLimit)
	assert.Equal(t, 35*time.Minute, cfg.Worker.SoftTimeLimit)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9999}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
