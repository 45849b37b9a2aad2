package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	port, err := cfg.Port()
	require.NoError(t, err)
	assert.Equal(t, 8888, port)
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\ndatabase_url: \"sqlite:board.db\"\nmdns: true\nlog_level: debug\n"), 0o600))

	cfg, err := load(path, env(map[string]string{"DATABASE_URL": "memory:", "OUTBOX_SIZE": "16", "JWT_SECRET": "k"}))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "memory:", cfg.DatabaseURL)
	assert.True(t, cfg.MDNS)
	assert.Equal(t, 16, cfg.OutboxSize)
	assert.Equal(t, "k", cfg.JWTSecret)

	lvl, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestInvalid(t *testing.T) {
	_, err := load("", env(map[string]string{"MDNS": "maybe"}))
	assert.Error(t, err)

	_, err = load("", env(map[string]string{"OUTBOX_SIZE": "0"}))
	assert.Error(t, err)

	_, err = load("", env(map[string]string{"LOG_LEVEL": "loud"}))
	assert.Error(t, err)

	_, err = load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.Error(t, err)
}
