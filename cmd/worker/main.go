// Worker entry point for ContactScope. It consumes analysis requests from
// Kafka and runs them through the same analysis service as the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ContactScope/internal/bootstrap"
	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/ContactScope/internal/interfaces/http"
	"github.com/turtacn/ContactScope/internal/interfaces/http/handlers"
)

var version = "dev"

const defaultWorkerConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	workers := flag.Int("workers", 0, "consumer group members in this process (overrides config)")
	flag.Parse()

	if err := run(*configPath, *workers); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workers int) error {
	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Worker.Concurrency = workers
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled must be true for the worker")
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	logger.Info("starting ContactScope worker",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.RequestTopic),
		logging.Int("consumers", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.Service(cfg, "contactscope-worker")
	if err != nil {
		return err
	}
	handle := requestHandler(svc, infra.Redis, cfg.Worker.ClaimTTL, logger)

	opts := []kafka.ConsumerOption{kafka.WithDeadLetter(infra.Producer)}
	if infra.Metrics != nil {
		opts = append(opts, kafka.WithRecorder(infra.Metrics))
	}
	consumers := make([]*kafka.Consumer, 0, cfg.Worker.Concurrency)
	defer func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}
	}()
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		c, err := kafka.NewConsumer(cfg.Kafka, []string{cfg.Kafka.RequestTopic},
			logger.With(logging.Int("consumer", i)), opts...)
		if err != nil {
			return err
		}
		c.Subscribe(cfg.Kafka.RequestTopic, handle)
		if err := c.Start(ctx); err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	health := handlers.NewHealthHandler(version, healthCheckers(infra)...)
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.RegisterRoutes(engine)
	if infra.Collector != nil {
		engine.GET(cfg.Metrics.Path, gin.WrapH(infra.Collector.Handler()))
	}
	healthSrv := httpserver.NewServer(config.ServerConfig{
		Port:            cfg.Worker.HealthPort,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, engine, logger)
	healthSrv.OnShutdown(func() { health.SetDraining(true) })
	go func() {
		if err := healthSrv.Start(); err != nil {
			logger.Error("health server failed", logging.Err(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining consumers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}
	return nil
}

func healthCheckers(infra *bootstrap.Infrastructure) []handlers.HealthChecker {
	var out []handlers.HealthChecker
	for _, c := range infra.HealthCheckers() {
		out = append(out, c)
	}
	return out
}
