// Command server runs the custodia HTTP service: quorum-governed owner
// registries, transfer proposals, and the treasury ledger behind them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"custodia/internal/audit"
	auditkafka "custodia/internal/audit/kafka"
	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/kafka"
	"custodia/internal/platform/locker"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/middleware"
	"custodia/internal/platform/postgres"
	"custodia/internal/platform/redis"
	proposalhandler "custodia/internal/proposal/handler"
	proposalmetrics "custodia/internal/proposal/metrics"
	proposalservice "custodia/internal/proposal/service"
	proposalstore "custodia/internal/proposal/store"
	registryhandler "custodia/internal/registry/handler"
	registrymetrics "custodia/internal/registry/metrics"
	"custodia/internal/registry/policy"
	registryservice "custodia/internal/registry/service"
	registrystore "custodia/internal/registry/store"
	transporthttp "custodia/internal/transport/http"
	"custodia/pkg/platform/tx"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	registries, proposals, ledgerStore, err := buildStores(ctx, db)
	if err != nil {
		return err
	}
	log.Info("stores ready", "backend", storeBackend(db))

	locks, err := buildLocker(cfg.Redis, log)
	if err != nil {
		return err
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
	}

	group, ctx := errgroup.WithContext(ctx)

	publisher := buildAuditTrail(ctx, group, producer, log)

	treasury := ledger.NewService(ledgerStore)
	registrySvc := registryservice.New(registries, treasury, policy.NewAuthority(), locks,
		registryservice.WithMetrics(registrymetrics.New()),
		registryservice.WithAuditPublisher(publisher),
	)
	proposalSvc := proposalservice.New(proposals, registries, treasury, locks,
		proposalservice.WithMetrics(proposalmetrics.New()),
		proposalservice.WithAuditPublisher(publisher),
		proposalservice.WithTxRunner(buildTxRunner(db)),
	)

	router := transporthttp.NewRouter(transporthttp.Options{
		Logger:         log,
		Verifier:       middleware.NewJWTVerifier(cfg.Server.JWTSigningKey),
		RequestTimeout: cfg.Server.RequestTimeout,
		Handlers: []transporthttp.Registrar{
			registryhandler.New(registrySvc, log),
			proposalhandler.New(proposalSvc, log),
		},
		HealthChecks: healthChecks(db),
	})

	server := httpserver.New(cfg.Server.Addr, router)
	group.Go(func() error {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// buildTxRunner matches the unit-of-work runner to the persistence backend:
// real database transactions for PostgreSQL, direct execution for the
// in-memory stores.
func buildTxRunner(db *sql.DB) tx.Runner {
	if db == nil {
		return tx.Passthrough{}
	}
	return tx.NewSQLRunner(db)
}

// buildStores selects the persistence backend: PostgreSQL when configured,
// in-memory otherwise.
func buildStores(ctx context.Context, db *sql.DB) (registrystore.Store, proposalstore.Store, ledger.Store, error) {
	if db == nil {
		return registrystore.NewMemoryStore(), proposalstore.NewMemoryStore(), ledger.NewMemoryStore(), nil
	}

	registries := registrystore.NewPostgresStore(db)
	proposals := proposalstore.NewPostgresStore(db)
	accounts := ledger.NewPostgresStore(db)
	for _, ensure := range []func(context.Context) error{
		registries.EnsureSchema, proposals.EnsureSchema, accounts.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			return nil, nil, nil, err
		}
	}
	return registries, proposals, accounts, nil
}

// buildLocker selects the entity-lock backend: Redis leases when configured,
// the in-process keyed mutex otherwise.
func buildLocker(cfg config.Redis, log *slog.Logger) (locker.Locker, error) {
	client, err := redis.New(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return locker.NewMemory(), nil
	}
	log.Info("using redis entity locks", "ttl", cfg.LockTTL.String())
	return locker.NewRedis(client.Client, cfg.LockTTL), nil
}

// buildAuditTrail wires the audit pipeline. With Kafka configured, events
// flow through the async inbox into the topic; otherwise they land in the
// in-memory store, which keeps the trail inspectable in development.
func buildAuditTrail(ctx context.Context, group *errgroup.Group, producer *kafka.Producer, log *slog.Logger) audit.Publisher {
	if producer == nil {
		return audit.NewStorePublisher(audit.NewMemoryStore())
	}
	async := audit.NewAsyncPublisher()
	worker := audit.NewWorker(async, auditkafka.NewPublisher(producer), log)
	group.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return async
}

func storeBackend(db *sql.DB) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}

func healthChecks(db *sql.DB) map[string]transporthttp.HealthChecker {
	checks := map[string]transporthttp.HealthChecker{}
	if db != nil {
		checks["postgres"] = db.Ping
	}
	return checks
}
