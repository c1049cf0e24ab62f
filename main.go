//go:build linux

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"tinyfs/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env is the normal case
		slog.Debug("No .env file found", "error", err)
	}

	cfg, err := config.ParseConfigFromEnv()
	if err != nil {
		slog.Error("Failed to parse config", "error", err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.TimeOnly,
	})))

	os.Exit(run(context.Background(), cfg, os.Args[1:], os.Stdin, os.Stdout))
}
