package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"citywalk/internal/certification/events"
	"citywalk/internal/certification/handler"
	certmetrics "citywalk/internal/certification/metrics"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
	"citywalk/internal/certification/service"
	"citywalk/internal/certification/store/ownership"
	jwttoken "citywalk/internal/jwt_token"
	"citywalk/internal/platform/config"
	"citywalk/internal/platform/database"
	"citywalk/internal/platform/httpserver"
	"citywalk/internal/platform/kafka"
	"citywalk/internal/platform/kafka/consumer"
	"citywalk/internal/platform/kafka/producer"
	"citywalk/internal/platform/logger"
	"citywalk/internal/platform/metrics"
	redisclient "citywalk/internal/platform/redis"
	"citywalk/internal/ratelimit"
	httptransport "citywalk/internal/transport/http"
	audit "citywalk/pkg/platform/audit"
	auditconsumer "citywalk/pkg/platform/audit/consumer"
	"citywalk/pkg/platform/audit/publishers/compliance"
	"citywalk/pkg/platform/audit/publishers/ops"
	"citywalk/pkg/platform/audit/publishers/security"
	auditmemory "citywalk/pkg/platform/audit/store/memory"
	auditpg "citywalk/pkg/platform/audit/store/postgres"
	"citywalk/pkg/platform/audit/worker"
	"citywalk/pkg/platform/circuit"
	txcontext "citywalk/pkg/platform/tx"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	redis  *redisclient.Client
	health map[string]httptransport.HealthCheck
}

func (i *infra) close() {
	if i.pool != nil {
		i.pool.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{health: make(map[string]httptransport.HealthCheck)}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		in.db = db
		if err := database.ApplySchema(ctx, db); err != nil {
			in.close()
			return nil, err
		}
		in.health["postgres"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.Chain.Source == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("open config pool: %w", err)
		}
		in.pool = pool
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		in.close()
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.health["redis"] = rc.Health
	}
	return in, nil
}

func buildConfigSource(cfg config.Server, in *infra, reg prometheus.Registerer, log *slog.Logger) (resolver.ConfigSource, error) {
	var source resolver.ConfigSource
	switch cfg.Chain.Source {
	case "yaml":
		y, err := resolver.LoadYAMLFile(cfg.Chain.ConfigFile)
		if err != nil {
			return nil, err
		}
		source = y
	case "postgres":
		source = resolver.NewPostgresSource(in.pool)
	default:
		source = resolver.NewEnvSource()
	}
	if in.redis != nil {
		source = resolver.NewRedisCachedSource(in.redis, source,
			resolver.WithTTL(cfg.Chain.CacheTTL),
			resolver.WithCacheLogger(log),
			resolver.WithCacheRegisterer(reg),
		)
	}
	return source, nil
}

func buildRegistry(cfg config.Server, log *slog.Logger) *providers.Registry {
	opts := []providers.Option{
		providers.WithLogger(log),
		providers.WithTimeout(cfg.Chain.BackendTimeout),
	}
	if cfg.Chain.GatewayEnabled {
		gateway := providers.NewGatewayBackend(
			providers.WithHTTPClient(&http.Client{Timeout: cfg.Chain.BackendTimeout}),
			providers.WithGatewayLogger(log),
			providers.WithBreakerOptions(
				circuit.WithFailureThreshold(cfg.Chain.FailureThreshold),
				circuit.WithCoolDown(cfg.Chain.CoolDown),
			),
		)
		opts = append(opts, providers.WithBackend(gateway))
	}
	return providers.NewDefaultRegistry(opts...)
}

// bucketStore shares chain rate limits through Redis when it is configured.
func bucketStore(in *infra) ratelimit.BucketStore {
	if in.redis != nil {
		return ratelimit.NewRedisBucketStore(in.redis)
	}
	return ratelimit.NewInMemoryBucketStore()
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	source, err := buildConfigSource(cfg, in, reg, log)
	if err != nil {
		return err
	}
	configResolver := resolver.New(source, resolver.WithLogger(log))

	var (
		store      service.Store
		auditStore audit.Store
		transactor txcontext.Transactor
		outbox     *auditpg.Store
	)
	if in.db != nil {
		store = ownership.NewPostgres(in.db)
		outbox = auditpg.New(in.db)
		auditStore = outbox
		transactor = txcontext.NewSQLTransactor(in.db)
	} else {
		store = ownership.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}

	securityPublisher := security.New(auditStore,
		security.WithLogger(log),
		security.WithMetrics(security.NewMetrics(reg)),
	)
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(certmetrics.New(reg)),
		service.WithComplianceAuditor(compliance.New(auditStore,
			compliance.WithLogger(log),
			compliance.WithMetrics(compliance.NewMetrics(reg)),
		)),
		service.WithSecurityAuditor(securityPublisher),
		service.WithOpsTracker(ops.New(auditStore,
			ops.WithSampler(ops.NewSampler(1.0, ops.SealSampling)),
			ops.WithLogger(log),
			ops.WithMetrics(ops.NewMetrics(reg)),
		)),
	}
	if transactor != nil {
		opts = append(opts, service.WithTransactor(transactor))
	}
	certService := service.New(store, configResolver, buildRegistry(cfg, log), opts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		AdminRole:      cfg.AdminRole,
		RequestTimeout: cfg.RequestTimeout,
		Health:         in.health,
	}, handler.New(certService, log, handler.WithChainMiddleware(
		ratelimit.NewLimiter(bucketStore(in), cfg.ChainRateLimit, cfg.ChainRateWindow, log).PerActor("chain"),
	)))

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return securityPublisher.Run(gctx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		if err := startKafka(gctx, g, cfg, log, certService, outbox, transactor); err != nil {
			return err
		}
	}

	g.Go(func() error {
		log.Info("starting citywalk certification server", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startKafka ensures topics and starts the seal.earned consumer and, when the
// audit outbox is Postgres-backed, the relay and the audit materializer.
func startKafka(ctx context.Context, g *errgroup.Group, cfg config.Server, log *slog.Logger,
	certService *service.Service, outbox *auditpg.Store, transactor txcontext.Transactor) error {
	kc := cfg.Kafka

	router := auditconsumer.NewRouter(log)
	if err := router.Register(kc.SealEarnedTopic, events.NewSealEarnedHandler(certService, log)); err != nil {
		return err
	}
	if outbox != nil {
		if err := router.Register(kc.AuditTopic, auditconsumer.NewAuditHandler(outbox, log)); err != nil {
			return err
		}
	}
	topics := router.Topics()

	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := kafka.EnsureTopics(ensureCtx, kc.Brokers, kc.TopicPartitions, kc.TopicReplication, topics...); err != nil {
		return err
	}

	if outbox != nil {
		prod, err := producer.New(kc.Brokers, "citywalk-outbox-relay")
		if err != nil {
			return err
		}
		relay := worker.NewRelay(outbox, transactor, prod, kc.AuditTopic,
			worker.WithInterval(kc.OutboxInterval),
			worker.WithBatchSize(kc.OutboxBatchSize),
			worker.WithLogger(log),
		)
		g.Go(func() error {
			defer prod.Close()
			return relay.Run(ctx)
		})
	}

	cons, err := consumer.New(kc.Brokers, kc.ConsumerGroup, topics, router, consumer.WithLogger(log))
	if err != nil {
		return err
	}
	g.Go(func() error {
		return cons.Run(ctx)
	})
	return nil
}
