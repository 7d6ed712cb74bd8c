// Package bootstrap builds the worker runtime from configuration: it wires
// the stores, the stream source, the scoring engine, and the operational
// servers, and owns the shutdown order.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/securebank/scoring-engine/internal/adapters/archive"
	"github.com/securebank/scoring-engine/internal/adapters/cache"
	eventadapter "github.com/securebank/scoring-engine/internal/adapters/events"
	httpadapter "github.com/securebank/scoring-engine/internal/adapters/http"
	"github.com/securebank/scoring-engine/internal/adapters/memory"
	"github.com/securebank/scoring-engine/internal/adapters/postgres"
	"github.com/securebank/scoring-engine/internal/application"
	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/metrics"
	"github.com/securebank/scoring-engine/internal/ports"
	"github.com/securebank/scoring-engine/internal/scoring"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	healthSrv  *health.Server
	dispatcher *application.Dispatcher
	stats      *application.Stats
	cleanupFn  func()
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	var closers []io.Closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}
	fail := func(err error) (*Runtime, error) {
		cleanup()
		return nil, err
	}

	var (
		profiles     ports.ProfileStore
		transactions ports.TransactionStore
		deadLetters  []ports.DeadLetterSink
		checks       []httpadapter.ReadinessCheck
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.ConnSettings{
			MaxOpenConns: int(cfg.MaxDBConns),
			PingTimeout:  cfg.StoreTimeout,
		})
		if err != nil {
			return fail(err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fail(err)
		}
		closers = append(closers, sqlDB)
		if err := postgres.RunMigrations(ctx, db, logger); err != nil {
			return fail(err)
		}
		profiles = postgres.NewProfileStore(db)
		transactions = postgres.NewTransactionStore(db)
		deadLetters = append(deadLetters, postgres.NewDeadLetterStore(db))
		checks = append(checks, httpadapter.ReadinessCheck{Name: "postgres", Probe: sqlDB.PingContext})
	} else {
		logger.WarnContext(ctx, "no database configured, using in-memory stores")
		profiles = memory.NewProfileStore()
		transactions = memory.NewTransactionStore()
	}

	var profileCache ports.ProfileCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, redisClient)
		profileCache = cache.NewRedisProfileCache(redisClient, cfg.ProfileCacheTTL)
		checks = append(checks, httpadapter.ReadinessCheck{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	var source ports.RecordSource
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSource, err := eventadapter.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaTopicTransaction)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, kafkaSource)
		source = kafkaSource

		dlqPublisher, err := eventadapter.NewKafkaDeadLetterPublisher(cfg.KafkaBrokers, cfg.KafkaTopicDeadLetter)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, dlqPublisher)
		deadLetters = append(deadLetters, dlqPublisher)
	} else {
		logger.WarnContext(ctx, "no kafka brokers configured, using in-memory record source")
		memSource := memory.NewRecordSource(cfg.PartitionQueueSize)
		closers = append(closers, memSource)
		source = memSource
	}
	if len(deadLetters) == 0 {
		deadLetters = append(deadLetters, memory.NewDeadLetterSink())
	}

	archiveSink, err := archive.NewFSSink(cfg.ArchiveDir)
	if err != nil {
		return fail(err)
	}

	m := metrics.New()
	stats := application.NewStats()
	engine := scoring.NewEngine(cfg.Scoring)
	pipeline := application.NewPipeline(application.PipelineDeps{
		Config: application.PipelineConfig{
			StoreTimeout:          cfg.StoreTimeout,
			ProfileUpdateAttempts: cfg.ProfileUpdateAttempts,
			WindowLimits: domain.WindowLimits{
				MaxAge:     cfg.WindowMaxAge,
				MaxEntries: cfg.WindowMaxEntries,
			},
		},
		Engine:       engine,
		Profiles:     profiles,
		Cache:        profileCache,
		Transactions: transactions,
		Archive:      archiveSink,
		Logger:       logger,
		Metrics:      m,
	})
	coordinator := application.NewCoordinator(application.CoordinatorConfig{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}, application.NewFanOutDeadLetterSink(deadLetters...), logger)
	dispatcher := application.NewDispatcher(application.DispatcherConfig{
		PartitionQueueSize: cfg.PartitionQueueSize,
	}, source, pipeline, coordinator, logger, m, stats)

	handler := httpadapter.NewHandler(stats, checks...)
	router := httpadapter.NewRouter(handler, m, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fail(err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		healthSrv:  healthSrv,
		dispatcher: dispatcher,
		stats:      stats,
		cleanupFn:  cleanup,
	}, nil
}

// Run serves until a signal or a fatal component error, then shuts down:
// stop fetching, let in-flight records finish, drain the servers, close the
// dependencies.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 3)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := r.dispatcher.Run(dispatchCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	r.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	cancelDispatch()
	select {
	case <-dispatchDone:
	case <-time.After(30 * time.Second):
		r.logger.Error("dispatcher did not drain before deadline")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn()

	snapshot := r.stats.Snapshot()
	r.logger.Info("worker stopped",
		"processed", snapshot.Processed,
		"duplicates", snapshot.Duplicates,
		"dead_lettered", snapshot.DeadLettered,
		"unresolved", snapshot.Unresolved,
		"fraud_flagged", snapshot.FraudFlagged,
	)
	return nil
}
