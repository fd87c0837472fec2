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
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "carbonledger/internal/jwt_token"
	"carbonledger/internal/platform/config"
	"carbonledger/internal/platform/httpserver"
	"carbonledger/internal/platform/logger"
	"carbonledger/internal/platform/metrics"
	"carbonledger/internal/platform/middleware"
	platformredis "carbonledger/internal/platform/redis"
	"carbonledger/internal/registry/cache"
	"carbonledger/internal/registry/handler"
	registrymetrics "carbonledger/internal/registry/metrics"
	"carbonledger/internal/registry/service"
	"carbonledger/internal/registry/state"
	id "carbonledger/pkg/domain"
	"carbonledger/pkg/platform/audit"
	"carbonledger/pkg/platform/audit/publisher"
	auditkafka "carbonledger/pkg/platform/audit/store/kafka"
	auditmem "carbonledger/pkg/platform/audit/store/memory"
	auditpg "carbonledger/pkg/platform/audit/store/postgres"
	pstrings "carbonledger/pkg/platform/strings"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	admin, err := id.ParseIdentity(cfg.AdminIdentity)
	if err != nil {
		return fmt.Errorf("invalid admin identity: %w", err)
	}

	auditSink, err := buildAuditStore(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer auditSink.close()

	auditPublisher := publisher.NewPublisher(auditSink.store,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize))
	defer auditPublisher.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := state.New(admin)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(registrymetrics.New()),
	}
	if redisClient != nil {
		opts = append(opts, service.WithSnapshotCache(
			cache.New(redisClient.Client, cfg.Redis.SnapshotTTL)))
	}
	svc, err := service.New(registry, opts...)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)

	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestContext)
	router.Use(middleware.HTTPMetrics(metrics.NewHTTP()))

	handler.New(svc, log, jwttoken.NewJWTServiceAdapter(jwtService)).Register(router)
	router.Post("/auth/token", jwttoken.TokenHandler(jwtService, cfg.JWT.TokenTTL))
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthz(redisClient, auditSink.ping))

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting carbonledger", "addr", cfg.Addr, "admin", admin.String())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// auditSink bundles an audit store with its health check and teardown.
type auditSink struct {
	store audit.Store
	ping  func(context.Context) error
	close func()
}

// buildAuditStore picks the audit sink from configuration: Postgres when a
// DSN is set, Kafka when brokers are set, in-memory otherwise.
func buildAuditStore(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (auditSink, error) {
	brokers := pstrings.DedupeAndTrim(cfg.KafkaBrokers)
	switch {
	case cfg.PostgresDSN != "":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return auditSink{}, fmt.Errorf("open audit database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return auditSink{}, fmt.Errorf("ping audit database: %w", err)
		}
		store := auditpg.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return auditSink{}, fmt.Errorf("ensure audit schema: %w", err)
		}
		log.Info("audit trail backed by postgres")
		return auditSink{
			store: store,
			ping:  db.PingContext,
			close: func() { db.Close() },
		}, nil

	case len(brokers) > 0:
		store, err := auditkafka.New(ctx, brokers, cfg.KafkaTopic)
		if err != nil {
			return auditSink{}, fmt.Errorf("connect audit kafka: %w", err)
		}
		log.Info("audit trail backed by kafka", "topic", cfg.KafkaTopic)
		return auditSink{
			store: store,
			ping:  func(context.Context) error { return nil },
			close: store.Close,
		}, nil

	default:
		log.Warn("audit trail is in-memory; events are lost on restart")
		return auditSink{
			store: auditmem.NewInMemoryStore(),
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}
}

func healthz(redisClient *platformredis.Client, auditPing func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if err := auditPing(r.Context()); err != nil {
			http.Error(w, "audit store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
