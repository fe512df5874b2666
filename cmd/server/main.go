// Command server runs the khata deposit engine. Configuration, storage,
// caches, the audit pipeline, feature services, scheduled sweeps and the
// HTTP router are wired here; business logic lives in the internal feature
// packages.
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounthandler "khata/internal/account/handler"
	accountmetrics "khata/internal/account/metrics"
	accountservice "khata/internal/account/service"
	accountstore "khata/internal/account/store"
	audithandler "khata/internal/audit/handler"
	deposithandler "khata/internal/deposit/handler"
	depositmetrics "khata/internal/deposit/metrics"
	depositservice "khata/internal/deposit/service"
	depositstore "khata/internal/deposit/store"
	dirstore "khata/internal/directory/store"
	"khata/internal/platform/config"
	"khata/internal/platform/httpserver"
	"khata/internal/platform/logger"
	platformmetrics "khata/internal/platform/metrics"
	platformmw "khata/internal/platform/middleware"
	"khata/internal/platform/postgres"
	platformredis "khata/internal/platform/redis"
	"khata/internal/scope"
	"khata/internal/sweeper"
	"khata/internal/token"
	"khata/internal/transport/http/shared"
	dErrors "khata/pkg/domain-errors"
	auditpg "khata/pkg/platform/audit/store/postgres"
	"khata/pkg/platform/audit/publisher"
	auditworker "khata/pkg/platform/audit/worker"
	"khata/pkg/platform/middleware/admin"
	"khata/pkg/platform/middleware/auth"
	"khata/pkg/platform/middleware/metadata"
	"khata/pkg/platform/middleware/request"
	"khata/pkg/platform/middleware/requesttime"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if cache != nil {
		defer cache.Close()
	}

	accounts := accountstore.NewPostgres(db)
	deposits := depositstore.NewPostgres(db)
	directory := dirstore.NewPostgres(db)
	auditStore := auditpg.New(db)

	if cfg.SeedDirectory {
		seeded, err := dirstore.Seed(ctx, directory)
		if err != nil {
			return fmt.Errorf("seed directory: %w", err)
		}
		log.Info("directory seeded",
			"admin_id", seeded.Admin,
			"manager_id", seeded.Manager,
			"agent_id", seeded.Agent,
			"clients", len(seeded.Clients),
		)
	}

	auditPub := publisher.NewPublisher(auditStore, publisher.WithLogger(log))
	defer auditPub.Close()

	var resolver scope.Resolver = scope.NewDirectoryResolver(directory)
	if cache != nil {
		resolver = scope.NewCachedResolver(resolver, cache.Client, cfg.ScopeCacheTTL, log)
	}

	accountSvc := accountservice.New(accounts, directory, resolver,
		accountservice.WithLogger(log),
		accountservice.WithAuditPublisher(auditPub),
		accountservice.WithMetrics(accountmetrics.New()),
	)

	depositOpts := []depositservice.Option{
		depositservice.WithLogger(log),
		depositservice.WithAuditPublisher(auditPub),
		depositservice.WithMetrics(depositmetrics.New()),
		depositservice.WithStoreTx(newDepositPostgresTx(db)),
		depositservice.WithLocation(loc),
	}
	if cache != nil {
		depositOpts = append(depositOpts, depositservice.WithEligibleCache(cache.Client, cfg.EligibleCacheTTL))
	}
	depositSvc := depositservice.New(deposits, accounts, directory, resolver, depositOpts...)

	sweeps := sweeper.New(accountSvc, depositSvc, sweeper.Config{
		Location:         loc,
		MaturitySchedule: cfg.MaturitySweepSchedule,
		DriftSchedule:    cfg.DriftSweepSchedule,
	}, log)
	if err := sweeps.Start(); err != nil {
		return err
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := auditworker.NewKafkaProducer(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()

		relay := auditworker.NewRelay(auditStore, producer,
			auditworker.WithLogger(log),
			auditworker.WithMetrics(auditworker.NewMetrics()),
		)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err.Error())
			}
		}()
		log.Info("audit relay started", "brokers", cfg.KafkaBrokers, "topic", cfg.AuditTopic)
	}

	validator := token.NewMiddlewareAdapter(token.NewService(cfg.JWTSigningKey, "khata", "khata-api"))

	router := chi.NewRouter()
	router.Use(request.Middleware)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(platformmw.Recovery(log))
	router.Use(platformmw.Logger(log))
	router.Use(platformmw.LatencyMiddleware(platformmetrics.New()))
	router.Use(platformmw.Timeout(requestTimeout))
	router.Use(platformmw.ContentTypeJSON)

	router.Get("/healthz", healthHandler(db, cache))
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(validator, log))
			accounthandler.New(accountSvc, log).Register(r)
			deposithandler.New(depositSvc, log).Register(r)
			audithandler.New(auditPub, log).Register(r)
		})
		sweeps.Register(r, admin.RequireOpsToken(cfg.OpsToken, log))
	})

	srv := httpserver.New(cfg.Addr, router)
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info("khata server started", "addr", cfg.Addr, "timezone", loc.String())

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	<-sweeps.Stop().Done()
	return nil
}

// healthHandler reports liveness plus dependency reachability. A failing
// dependency turns the probe into a 503 so the orchestrator stops routing
// traffic here.
func healthHandler(db *sql.DB, cache *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "database unreachable"))
			return
		}
		if cache != nil {
			if err := cache.Health(ctx); err != nil {
				shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "redis unreachable"))
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
