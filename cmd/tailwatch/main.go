// Command tailwatch starts the live-watcher relay: it tails configured
// transcript files and relays rendered messages to Telegram/Slack via the
// HTTP API defined in pkg/api.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sessionrelay/tailwatch/pkg/config"
	"github.com/sessionrelay/tailwatch/pkg/orchestrator"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	host := flag.String("host", getEnv("TAILWATCH_HOST", "0.0.0.0"), "HTTP listen host")
	port := flag.Int("port", 0, "HTTP listen port (0 = use config value)")
	configPath := flag.String("config", getEnv("TAILWATCH_CONFIG", "./config.yaml"), "path to config YAML file")
	stateDir := flag.String("state-dir", "", "override the config's state directory")
	logLevel := flag.String("log-level", getEnv("TAILWATCH_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Debug("no .env file loaded", "path", envPath, "error", err)
	} else {
		logger.Info("loaded environment overrides", "path", envPath)
	}

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *host != "" {
		cfg.HTTP.Host = *host
	}

	orch, err := orchestrator.New(cfg, *configPath, logger)
	if err != nil {
		logger.Error("failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	logger.Info("starting tailwatch", "addr", addr, "config", *configPath)

	if err := orch.Run(runCtx, addr); err != nil {
		logger.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
