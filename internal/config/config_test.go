package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/store")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 15, cfg.JWTAccessTTLMinutes)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, time.Minute, cfg.SettingsReloadInterval)
	assert.Equal(t, 60, cfg.Store.RateLimitWindow)
	assert.Equal(t, 3, cfg.Store.RateLimitMaxAttempts)
	assert.Equal(t, 300, cfg.Store.BlockDuration)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/store")
	t.Setenv("OTP_RATE_LIMIT_MAX_ATTEMPTS", "5")
	t.Setenv("STORE_NAME", "WP Themes")
	t.Setenv("OTP_CLEANUP_INTERVAL", "0s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Store.RateLimitMaxAttempts)
	assert.Equal(t, "WP Themes", cfg.Store.StoreName)
	assert.Equal(t, time.Duration(0), cfg.OTPCleanupInterval)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestStoreDefaults_OTPSettings(t *testing.T) {
	d := StoreDefaults{StoreName: "Theme Store", RateLimitWindow: 60, RateLimitMaxAttempts: 3, BlockDuration: 300}

	s := d.OTPSettings()
	assert.Equal(t, time.Minute, s.RateLimitWindow)
	assert.Equal(t, 5*time.Minute, s.BlockDuration)
	assert.Equal(t, 20*time.Second, s.MinWait())
}

func TestConfig_CORSOrigins(t *testing.T) {
	cfg := &Config{SiteURL: "https://store.test/"}
	assert.Equal(t, []string{"https://store.test"}, cfg.CORSOrigins())

	cfg.CORSAllowedOrigins = []string{"https://a.test", "https://b.test"}
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins())
}
