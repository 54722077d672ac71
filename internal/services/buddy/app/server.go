// Package server wires the buddy runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/safezone/internal/platform/lock"
	"github.com/louisbranch/safezone/internal/platform/timeouts"
	buddyservice "github.com/louisbranch/safezone/internal/services/buddy/api/grpc/buddy"
	"github.com/louisbranch/safezone/internal/services/buddy/domain"
	buddysqlite "github.com/louisbranch/safezone/internal/services/buddy/storage/sqlite"
	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	"github.com/louisbranch/safezone/internal/services/notifications/publish"
	"github.com/louisbranch/safezone/internal/services/notifications/render"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"github.com/louisbranch/safezone/internal/services/shared/grpcauthctx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Config is the runtime configuration of one buddy server.
type Config struct {
	Addr              string
	DBPath            string
	SweepInterval     time.Duration
	CheckInPoints     int
	CompletionPoints  int
	Locale            string
	RedisAddr         string
	RedisLockPrefix   string
	NATSURL           string
	NATSSubjectPrefix string
	Logger            *zap.Logger
}

// Server hosts the buddy gRPC API, the missed check-in sweeper and their
// storage lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *buddysqlite.Store
	sweeper    *domain.Sweeper
	redis      *redis.Client
	nats       *nats.Conn
	logger     *zap.Logger
	closeOnce  sync.Once
}

// New opens storage and optional infrastructure and binds the listener.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := localizer(cfg.Locale)
	if err != nil {
		return nil, err
	}

	srv := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			srv.Close()
		}
	}()

	srv.store, err = buddysqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		srv.redis = redis.NewClient(&redis.Options{Addr: addr})
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCDial)
		err := srv.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", addr, err)
		}
		locker = lock.NewRedisLocker(srv.redis, lock.RedisConfig{Prefix: cfg.RedisLockPrefix}, logger)
		logger.Info("using redis session locks", zap.String("addr", addr))
	}

	var publisher notifdomain.Publisher
	if url := strings.TrimSpace(cfg.NATSURL); url != "" {
		srv.nats, err = publish.Connect(url, "safezone-buddy")
		if err != nil {
			return nil, err
		}
		publisher = publish.NewPublisher(srv.nats, cfg.NATSSubjectPrefix, logger)
		logger.Info("publishing notifications to nats", zap.String("url", url))
	}

	policy := pointsdomain.Policy{CheckInPoints: cfg.CheckInPoints, CompletionPoints: cfg.CompletionPoints}
	ladder := pointsdomain.DefaultLadder()
	opts := []domain.Option{
		domain.WithLocker(locker),
		domain.WithLocalizer(loc),
		domain.WithPolicy(policy),
		domain.WithLadder(ladder),
		domain.WithLogger(logger.Named("sessions")),
	}
	if publisher != nil {
		opts = append(opts, domain.WithPublisher(publisher))
	}
	users := srv.store.Points()
	sessions := domain.NewService(srv.store, users, opts...)
	queries := domain.NewQueryService(srv.store, users)
	inbox := notifdomain.NewService(srv.store.Notifications(), nil, nil)
	if publisher != nil {
		inbox = inbox.WithPublisher(publisher)
	}
	points := pointsdomain.NewService(users, ladder, nil, nil)
	srv.sweeper = domain.NewSweeper(sessions, cfg.SweepInterval, logger.Named("sweeper"))

	srv.listener, err = net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	srv.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcauthctx.UnaryServerInterceptor(nil)),
	)
	buddyservice.Register(srv.grpcServer, buddyservice.NewService(sessions, queries, inbox, points, logger.Named("grpc")))
	srv.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv.grpcServer, srv.health)
	srv.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.health.SetServingStatus(buddyservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	ok = true
	return srv, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a buddy server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the gRPC server and the sweeper until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil || s.grpcServer == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_ = s.sweeper.Run(sweepCtx)
	}()
	defer func() {
		stopSweep()
		<-sweepDone
	}()

	s.logger.Info("buddy server listening", zap.String("addr", s.Addr()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.gracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// gracefulStop drains in-flight calls, forcing a stop after timeouts.Shutdown.
func (s *Server) gracefulStop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeouts.Shutdown):
		s.logger.Warn("graceful stop timed out")
		s.grpcServer.Stop()
	}
}

// Close releases buddy server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.nats != nil {
			s.nats.Close()
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				s.logger.Warn("close redis", zap.Error(err))
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Warn("close buddy store", zap.Error(err))
			}
		}
	})
}

func localizer(locale string) (render.Localizer, error) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return render.NewLocalizer(language.English), nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	return render.NewLocalizer(tag), nil
}
