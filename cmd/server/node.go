package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agegate/internal/audit"
	auditkafka "agegate/internal/audit/kafka"
	jwttoken "agegate/internal/jwt_token"
	"agegate/internal/platform/config"
	platformmetrics "agegate/internal/platform/metrics"
	"agegate/internal/platform/postgres"
	"agegate/internal/platform/redis"
	"agegate/internal/proof/setup"
	"agegate/internal/proof/verifier"
	"agegate/internal/ratelimit"
	"agegate/internal/subscription/handler"
	"agegate/internal/subscription/keeper"
	subscriptionmetrics "agegate/internal/subscription/metrics"
	"agegate/internal/subscription/service"
	"agegate/internal/subscription/store"
	"agegate/internal/subscription/store/plancache"
	authmw "agegate/pkg/platform/middleware/auth"
	"agegate/pkg/platform/middleware/request"
	"agegate/pkg/platform/middleware/requesttime"
)

const auditBufferSize = 1024

// node is everything main runs and later closes.
type node struct {
	router      http.Handler
	keeper      *keeper.Keeper
	auditWorker *audit.Worker
	closers     []func()
}

func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
}

func buildNode(ctx context.Context, cfg config.Config, log *slog.Logger) (n *node, err error) {
	n = &node{}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	v, err := loadVerifier(cfg.Proof, log)
	if err != nil {
		return nil, err
	}

	st, tx, err := openStore(ctx, cfg, n, log)
	if err != nil {
		return nil, err
	}

	publisher, err := buildAudit(ctx, cfg, n, log)
	if err != nil {
		return nil, err
	}

	subMetrics := subscriptionmetrics.New()
	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(subMetrics),
	}
	rdb, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var limits ratelimit.Store = ratelimit.NewInMemoryStore()
	if rdb != nil {
		limits = ratelimit.NewRedisStore(rdb)
		n.closers = append(n.closers, func() { _ = rdb.Close() })
		opts = append(opts, service.WithPlanReader(
			plancache.New(rdb, st, plancache.WithTTL(cfg.Redis.PlanTTL), plancache.WithLogger(log)),
		))
		log.Info("plan cache enabled", "ttl", cfg.Redis.PlanTTL)
	}

	svc, err := service.New(st, tx, v, service.Config{
		FreshnessToleranceDays: cfg.Ledger.FreshnessToleranceDays,
		GracePeriod:            cfg.Ledger.GracePeriod,
		Owner:                  cfg.Ledger.Owner,
	}, opts...)
	if err != nil {
		return nil, err
	}
	if current, err := svc.Owner(ctx); err != nil {
		return nil, err
	} else if current.IsZero() {
		log.Warn("no registry owner, plan creation is disabled until OWNER_ACCOUNT is set")
	}

	if cfg.Keeper.Enabled {
		n.keeper = keeper.New(svc,
			keeper.WithInterval(cfg.Keeper.Interval),
			keeper.WithConcurrency(cfg.Keeper.Concurrency),
			keeper.WithLogger(log),
			keeper.WithMetrics(subMetrics),
		)
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	auth := authmw.RequireAuth(jwttoken.NewValidator(jwtService), log)
	registerLimit := ratelimit.New(limits,
		ratelimit.WithLimit(cfg.RateLimit.RegisterLimit, cfg.RateLimit.RegisterWindow),
		ratelimit.WithLogger(log),
	).PerCaller("register")

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", request.HeaderRequestID},
			ExposedHeaders: []string{"Retry-After", "X-RateLimit-Remaining", request.HeaderRequestID},
			MaxAge:         300,
		}))
	}
	r.Use(platformmetrics.New(prometheus.DefaultRegisterer).LatencyMiddleware)
	handler.New(svc, auth, log, handler.WithRegisterLimit(registerLimit)).Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	n.router = r
	return n, nil
}

// loadVerifier reads the pinned parameters, derives the keys and checks the verifying key
// against the registered digest when one is configured.
func loadVerifier(cfg config.Proof, log *slog.Logger) (*verifier.Verifier, error) {
	f, err := os.Open(cfg.ParamsPath)
	if err != nil {
		return nil, fmt.Errorf("open params: %w", err)
	}
	defer f.Close()

	params, err := setup.ReadParams(f, cfg.ParamsDigest)
	if err != nil {
		return nil, err
	}
	keys, err := setup.SetupMinAge(params)
	if err != nil {
		return nil, err
	}
	if !cfg.VKDigest.IsZero() && keys.VKDigest != cfg.VKDigest {
		return nil, fmt.Errorf("%w: verifying key digest %s does not match pinned %s",
			setup.ErrVerifyingKeyTampered, keys.VKDigest, cfg.VKDigest)
	}
	log.Info("verifying key ready", "params_digest", params.Digest().String(), "vk_digest", keys.VKDigest.String())

	return verifier.New(keys.Verifying,
		verifier.WithBudget(cfg.GasBudget),
		verifier.WithMaxProofSize(cfg.MaxProofSize),
		verifier.WithMetrics(verifier.NewMetrics()),
		verifier.WithLogger(log),
	), nil
}

type ledgerStore interface {
	service.Store
	service.StoreTx
}

func openStore(ctx context.Context, cfg config.Config, n *node, log *slog.Logger) (service.Store, service.StoreTx, error) {
	var st ledgerStore
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, ledger state is in memory")
		st = store.NewInMemory()
		return st, st, nil
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	n.closers = append(n.closers, func() { closeDB(db, log) })
	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	st = pg
	return st, st, nil
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Error("closing database", "error", err)
	}
}

// buildAudit publishes to Kafka through a buffer when brokers are configured, otherwise
// into process memory.
func buildAudit(ctx context.Context, cfg config.Config, n *node, log *slog.Logger) (*audit.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewPublisher(audit.NewInMemoryStore()), nil
	}
	sink, err := auditkafka.NewSink(ctx, auditkafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, log)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, sink.Close)
	buf := audit.NewBuffer(auditBufferSize, log)
	n.auditWorker = audit.NewWorker(sink, buf.Inbox(), log)
	log.Info("audit events go to kafka", "topic", cfg.Kafka.Topic)
	return audit.NewPublisher(buf), nil
}
