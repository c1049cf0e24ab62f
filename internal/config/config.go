// Runtime settings, read from the environment (a .env file is loaded first by main).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const DEFAULT_LISTEN = "127.0.0.1:8080"

type Config struct {
	RingEntries	uint32 		// TINYFS_RING_ENTRIES, power of two
	Workers		int 		// TINYFS_WORKERS
	Cpu			int 		// TINYFS_CPU, -1 leaves the loop thread unpinned
	NoRing		bool 		// TINYFS_NO_RING
	LogLevel	slog.Level 	// TINYFS_LOG_LEVEL: debug, info, warn, error
	ListenAddr	string 		// TINYFS_LISTEN
	RemoteUrl	string 		// TINYFS_REMOTE, ws:// or wss://, empty means local
	Token		string 		// TINYFS_TOKEN, shared by serve and remote clients, empty disables
}

func ParseConfigFromEnv() (*Config, error) {
	cfg := &Config{
		RingEntries: 	0x100,
		Workers: 		4,
		Cpu: 			-1,
		LogLevel: 		slog.LevelInfo,
		ListenAddr: 	DEFAULT_LISTEN,
	}

	if v := os.Getenv("TINYFS_RING_ENTRIES"); v != "" {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil || n == 0 || n&(n-1) != 0 {
			return nil, fmt.Errorf("TINYFS_RING_ENTRIES must be a power of two, got: %s", v)
		}
		cfg.RingEntries = uint32(n)
	}

	if v := os.Getenv("TINYFS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("TINYFS_WORKERS must be a positive integer, got: %s", v)
		}
		cfg.Workers = n
	}

	if v := os.Getenv("TINYFS_CPU"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < -1 {
			return nil, fmt.Errorf("TINYFS_CPU must be a cpu index or -1, got: %s", v)
		}
		cfg.Cpu = n
	}

	if v := os.Getenv("TINYFS_NO_RING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TINYFS_NO_RING must be a boolean, got: %s", v)
		}
		cfg.NoRing = b
	}

	if v := os.Getenv("TINYFS_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return nil, fmt.Errorf("TINYFS_LOG_LEVEL: %w", err)
		}
	}

	if v := os.Getenv("TINYFS_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}

	if v := os.Getenv("TINYFS_REMOTE"); v != "" {
		if !strings.HasPrefix(v, "ws://") && !strings.HasPrefix(v, "wss://") {
			return nil, fmt.Errorf("TINYFS_REMOTE must start with ws:// or wss://, got: %s", v)
		}
		cfg.RemoteUrl = v
	}

	cfg.Token = os.Getenv("TINYFS_TOKEN")

	return cfg, nil
}
