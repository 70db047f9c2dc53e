// Package grpc hosts the ContactScope gRPC endpoint: the standard health
// service plus the read-only session service.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
)

// Session payloads carry whole interaction lists.
const maxMessageBytes = 32 << 20

const stopGrace = 10 * time.Second

const healthPrefix = "/grpc.health.v1.Health/"

// Recorder receives one observation per finished call. prometheus.AppMetrics
// satisfies it.
type Recorder interface {
	RecordGRPCRequest(service, method, code string, d time.Duration)
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithListener serves on l instead of binding grpc.port. Tests pass a bufconn
// listener here.
func WithListener(l net.Listener) Option {
	return func(s *Server) { s.lis = l }
}

// Server owns a grpc.Server, its listener and the health service.
type Server struct {
	srv      *grpc.Server
	lis      net.Listener
	health   *health.Server
	logger   logging.Logger
	recorder Recorder

	mu      sync.Mutex
	started bool
}

// NewServer binds the listener and registers the health service. Health
// starts as NOT_SERVING until SetServing is called.
func NewServer(cfg config.GRPCConfig, opts ...Option) (*Server, error) {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.logger = s.logger.Named("grpc")

	if s.lis == nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return nil, fmt.Errorf("grpc listen on port %d: %w", cfg.Port, err)
		}
		s.lis = lis
	}

	s.srv = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 10 * time.Minute,
			Time:              2 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			recoverPanics(s.logger),
			observeCalls(s.logger, s.recorder),
		),
	)

	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

// RegisterService registers impl and tracks its health under the service
// name. Must be called before Start.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.srv.RegisterService(desc, impl)
	s.health.SetServingStatus(desc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.logger.Debug("registered service", logging.String("service", desc.ServiceName))
}

// SetServing marks the server and every registered service SERVING.
func (s *Server) SetServing() { s.health.Resume() }

// SetNotServing marks everything NOT_SERVING so clients drain.
func (s *Server) SetNotServing() { s.health.Shutdown() }

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("grpc server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("grpc server listening", logging.String("address", s.Addr()))
	return s.srv.Serve(s.lis)
}

// Stop flips health to NOT_SERVING and drains in-flight calls. Calls still
// running after stopGrace, or when ctx ends first, are cut off.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.SetNotServing()
	if !started {
		return s.lis.Close()
	}

	ctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
		s.logger.Info("grpc server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("grpc drain timed out, closing connections")
		s.srv.Stop()
	}
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func recoverPanics(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return next(ctx, req)
	}
}

// observeCalls logs and records every call except health probes.
func observeCalls(logger logging.Logger, rec Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		took := time.Since(start)
		code := status.Code(err)

		if rec != nil {
			service, method := methodParts(info.FullMethod)
			rec.RecordGRPCRequest(service, method, code.String(), took)
		}

		fields := []logging.Field{
			logging.String("method", info.FullMethod),
			logging.String("code", code.String()),
			logging.Duration("took", took),
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, logging.Err(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}

// methodParts splits "/package.Service/Method" into its two halves.
func methodParts(fullMethod string) (service, method string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	i := strings.LastIndexByte(fullMethod, '/')
	if i < 0 {
		return "unknown", fullMethod
	}
	return fullMethod[:i], fullMethod[i+1:]
}
