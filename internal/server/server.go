package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/account"
	"github.com/chungtau/ledger-bank/internal/config"
	"github.com/chungtau/ledger-bank/internal/events"
	"github.com/chungtau/ledger-bank/internal/grpcserver"
	"github.com/chungtau/ledger-bank/internal/handler"
	"github.com/chungtau/ledger-bank/internal/ledger"
	"github.com/chungtau/ledger-bank/internal/natsrpc"
	"github.com/chungtau/ledger-bank/internal/query"
	"github.com/chungtau/ledger-bank/internal/store"
	"github.com/chungtau/ledger-bank/internal/store/memory"
	"github.com/chungtau/ledger-bank/internal/store/postgres"
)

// Server owns every long-lived dependency of the ledger process.
type Server struct {
	cfg         *config.Config
	log         *zap.Logger
	httpServer  *http.Server
	grpcServer  *grpcserver.Server
	store       store.Store
	publisher   *events.KafkaPublisher
	redisClient *redis.Client
	natsConn    *nats.Conn
	responder   *natsrpc.Responder
}

// New creates a new server instance
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}

	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	s.store = st

	opts := []ledger.Option{ledger.WithStoreTimeout(cfg.StoreTimeout)}
	if len(cfg.KafkaBrokers) > 0 {
		s.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		opts = append(opts, ledger.WithPublisher(s.publisher))
	}
	engine := ledger.NewEngine(st, log, opts...)
	queries := query.NewService(engine, st)
	accounts := account.NewService(st, log)

	log.Info("connecting to redis", zap.String("addr", cfg.RedisAddr))
	s.redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, rate limiting and idempotency disabled", zap.Error(err))
		_ = s.redisClient.Close()
		s.redisClient = nil
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("ledger-bank"))
		if err != nil {
			s.closeDeps()
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		s.natsConn = nc
		s.responder = natsrpc.NewResponder(nc, queries, log)
		if err := s.responder.Start(); err != nil {
			s.closeDeps()
			return nil, fmt.Errorf("start balance responder: %w", err)
		}
	}

	health := handler.NewHealthHandler(st, s.redisClient)
	s.grpcServer = grpcserver.New(health, log)

	router := SetupRouter(cfg, Deps{
		Ledger:   engine,
		Queries:  queries,
		Accounts: accounts,
		Health:   health,
		Redis:    s.redisClient,
		Log:      log,
	})

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.MemoryStore {
		st := memory.New()
		if _, err := st.Seed(ctx, memory.DefaultSeed); err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		log.Info("using in-memory store with seed accounts", zap.Int("accounts", len(memory.DefaultSeed)))
		return st, nil
	}

	if err := postgres.Migrate(cfg.DatabaseURL, log); err != nil {
		return nil, err
	}
	return postgres.Connect(ctx, postgres.Config{URL: cfg.DatabaseURL, MaxConns: int32(cfg.DBMaxConns)}, log)
}

// Run starts the server and handles graceful shutdown
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", ":"+s.cfg.GRPCPort)
	if err != nil {
		s.closeDeps()
		return fmt.Errorf("listen grpc: %w", err)
	}

	errChan := make(chan error, 2)

	go func() {
		s.log.Info("starting http server",
			zap.String("port", s.cfg.HTTPPort),
			zap.Bool("memory_store", s.cfg.MemoryStore),
			zap.Bool("dev_mode", s.cfg.DevMode),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go s.grpcServer.Watch(ctx, 5*time.Second)

	var runErr error
	select {
	case runErr = <-errChan:
		s.log.Error("server failed", zap.Error(runErr))
	case <-ctx.Done():
		s.log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http server shutdown error", zap.Error(err))
	}
	s.grpcServer.Stop()
	s.closeDeps()

	s.log.Info("server gracefully stopped")
	return runErr
}

// closeDeps releases everything New acquired, in reverse order.
func (s *Server) closeDeps() {
	if s.responder != nil {
		if err := s.responder.Stop(); err != nil {
			s.log.Error("nats responder stop error", zap.Error(err))
		}
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Error("redis client close error", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Error("kafka publisher close error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Error("store close error", zap.Error(err))
		}
	}
}
