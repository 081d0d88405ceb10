package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/meridian/adapter/cli"
	"github.com/felixgeelhaar/meridian/pkg/config"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

func main() {
	logCfg := observability.DefaultLogConfig()
	logCfg.ServiceVersion = cli.Version

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logCfg.Level = cfg.LogLevel
	if cfg.IsProduction() {
		logCfg.Format = observability.LogFormatJSON
	}

	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	cli.Execute(context.Background())
}
