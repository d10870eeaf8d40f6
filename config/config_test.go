package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "RELAY_MODE", "RAILWAY_ENVIRONMENT", "RENDER", "BRIDGE_TIMEOUT", "ALLOWED_ORIGINS", "WS_PATH"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.Mode)
	assert.Equal(t, 5*time.Second, cfg.BridgeTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, int64(100<<20), cfg.WSMaxMessageBytes)
	assert.False(t, cfg.TLSEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RELAY_MODE", "")
	t.Setenv("RENDER", "true")
	t.Setenv("BRIDGE_TIMEOUT", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PIN_RATE_LIMIT", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "cloud", cfg.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.BridgeTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.PinRateLimit)
}

func TestTLSEnabled(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")

	cfg := Config{TLSCertFile: cert, TLSKeyFile: key}
	assert.False(t, cfg.TLSEnabled())

	assert.NoError(t, os.WriteFile(cert, []byte("x"), 0600))
	assert.NoError(t, os.WriteFile(key, []byte("x"), 0600))
	assert.True(t, cfg.TLSEnabled())
}
