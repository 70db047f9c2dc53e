package main

import (
	"fmt"
	"os"

	"github.com/turtacn/ContactScope/internal/bootstrap"
	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/internal/interfaces/http/handlers"
)

// loadConfig reads path when it exists and otherwise runs on defaults plus
// CSCOPE_ environment overrides.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s not readable, using environment configuration\n", path)
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
	})
}

// healthCheckers exposes the open stores on /readyz.
func healthCheckers(infra *bootstrap.Infrastructure) []handlers.HealthChecker {
	var out []handlers.HealthChecker
	for _, c := range infra.HealthCheckers() {
		out = append(out, c)
	}
	return out
}

// watchConfig applies log level changes without a restart. Other settings
// need one.
func watchConfig(path string, logger logging.Logger) {
	err := config.Watch(path, func(cfg *config.Config) {
		if logging.SetLevel(logger, cfg.Log.Level) {
			logger.Info("log level reloaded", logging.String("level", cfg.Log.Level))
		}
	}, func(err error) {
		logger.Warn("ignoring invalid config revision", logging.Err(err))
	})
	if err != nil {
		logger.Debug("config hot reload disabled", logging.Err(err))
	}
}
