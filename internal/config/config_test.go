package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"TINYFS_RING_ENTRIES", "TINYFS_WORKERS", "TINYFS_CPU", "TINYFS_NO_RING",
	"TINYFS_LOG_LEVEL", "TINYFS_LISTEN", "TINYFS_REMOTE", "TINYFS_TOKEN",
}

// t.Setenv restores afterwards, empty counts as unset
func clearEnv(t *testing.T) {
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func Test_Config_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := ParseConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), cfg.RingEntries)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, -1, cfg.Cpu)
	assert.False(t, cfg.NoRing)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, DEFAULT_LISTEN, cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Empty(t, cfg.RemoteUrl)
	assert.Empty(t, cfg.Token)
}

func Test_Config_From_Dotenv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"TINYFS_RING_ENTRIES=0x40\n"+
		"TINYFS_WORKERS=2\n"+
		"TINYFS_CPU=0\n"+
		"TINYFS_NO_RING=true\n"+
		"TINYFS_LOG_LEVEL=debug\n"+
		"TINYFS_LISTEN=127.0.0.1:9000\n"+
		"TINYFS_REMOTE=ws://localhost:9000\n"+
		"TINYFS_TOKEN=s3cret\n"), 0o644))

	// Overload because clearEnv left the keys set to ""
	require.NoError(t, godotenv.Overload(path))

	cfg, err := ParseConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x40), cfg.RingEntries)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 0, cfg.Cpu)
	assert.True(t, cfg.NoRing)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "ws://localhost:9000", cfg.RemoteUrl)
	assert.Equal(t, "s3cret", cfg.Token)
}

func Test_Config_Rejects(t *testing.T) {
	cases := map[string]string{
		"TINYFS_RING_ENTRIES":	"100",
		"TINYFS_WORKERS":		"0",
		"TINYFS_CPU":			"-2",
		"TINYFS_NO_RING":		"maybe",
		"TINYFS_LOG_LEVEL":		"loud",
		"TINYFS_REMOTE":		"http://x",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			_, err := ParseConfigFromEnv()
			assert.Error(t, err)
		})
	}
}
