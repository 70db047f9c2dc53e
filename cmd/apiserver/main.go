// API server entry point for ContactScope.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/ContactScope/internal/bootstrap"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/ContactScope/internal/interfaces/grpc"
	"github.com/turtacn/ContactScope/internal/interfaces/grpc/services"
	httpserver "github.com/turtacn/ContactScope/internal/interfaces/http"
	"github.com/turtacn/ContactScope/internal/interfaces/http/handlers"
	"github.com/turtacn/ContactScope/internal/interfaces/http/middleware"
)

// Set through -ldflags at build time.
var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC server port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *httpPort, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort, grpcPort int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}
	if grpcPort > 0 {
		cfg.GRPC.Port = grpcPort
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	logger.Info("starting ContactScope API server",
		logging.String("version", version),
		logging.String("http_addr", cfg.Server.Addr()),
		logging.Bool("grpc", cfg.GRPC.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.Service(cfg, "contactscope-apiserver")
	if err != nil {
		return err
	}

	health := handlers.NewHealthHandler(version, healthCheckers(infra)...)
	routerCfg := httpserver.RouterConfig{
		Mode:            cfg.Server.Mode,
		AnalysisHandler: handlers.NewAnalysisHandler(svc, cfg.Analysis, logger),
		HealthHandler:   health,
		Logger:          logger,
		SlowThreshold:   cfg.Server.SlowThreshold,
		RateLimit: middleware.RateLimitConfig{
			Rate:  cfg.Server.RateLimit,
			Burst: cfg.Server.RateBurst,
		},
	}
	if infra.Metrics != nil {
		routerCfg.Recorder = infra.Metrics
		routerCfg.MetricsHandler = infra.Collector.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	httpSrv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	httpSrv.OnShutdown(func() { health.SetDraining(true) })

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		opts := []grpcserver.Option{grpcserver.WithLogger(logger)}
		if infra.Metrics != nil {
			opts = append(opts, grpcserver.WithRecorder(infra.Metrics))
		}
		if grpcSrv, err = grpcserver.NewServer(cfg.GRPC, opts...); err != nil {
			return err
		}
		grpcSrv.RegisterService(&services.SessionServiceDesc, services.NewSessionServer(svc, logger))
		httpSrv.OnShutdown(grpcSrv.SetNotServing)
	}

	watchConfig(configPath, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()
	if grpcSrv != nil {
		go func() { errCh <- grpcSrv.Start() }()
		grpcSrv.SetServing()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", logging.Err(err))
	}
	if grpcSrv != nil {
		if err := grpcSrv.Stop(shutdownCtx); err != nil {
			logger.Error("grpc shutdown error", logging.Err(err))
		}
	}
	logger.Info("servers stopped")
	return nil
}
