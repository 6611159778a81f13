package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	enthttp "github.com/entgrid/entitled/internal/adapter/http"
	entnats "github.com/entgrid/entitled/internal/adapter/nats"
	"github.com/entgrid/entitled/internal/adapter/natskv"
	"github.com/entgrid/entitled/internal/adapter/otel"
	"github.com/entgrid/entitled/internal/adapter/postgres"
	"github.com/entgrid/entitled/internal/adapter/ristretto"
	"github.com/entgrid/entitled/internal/adapter/tiered"
	"github.com/entgrid/entitled/internal/adapter/x509cert"
	"github.com/entgrid/entitled/internal/config"
	"github.com/entgrid/entitled/internal/logger"
	"github.com/entgrid/entitled/internal/middleware"
	"github.com/entgrid/entitled/internal/resilience"
	"github.com/entgrid/entitled/internal/scheduler"
	"github.com/entgrid/entitled/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"regen_max_concurrent", cfg.Regen.MaxConcurrent,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := entnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Product read cache: local ristretto tier over a shared NATS KV tier,
	// so one replica's invalidation reaches the others.
	localCache, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer localCache.Close()
	remoteCache, err := natskv.Open(ctx, queue.JetStream(), "entitled_products", cfg.Cache.ProductTTL)
	if err != nil {
		return fmt.Errorf("kv cache: %w", err)
	}
	productCache := tiered.New(localCache, remoteCache, cfg.Cache.ProductTTL)

	// Issuing CA, guarded so a dead signing backend fails fast mid-sweep
	ca, err := x509cert.New(cfg.Signer)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	sign := resilience.NewGuardedSigner(ca, cfg.Signer.BreakerThreshold, cfg.Signer.BreakerCooldown)

	// CA rotation without restart: SIGHUP re-reads the PEM files.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := ca.Reload(); err != nil {
				slog.Error("ca reload failed", "error", err)
				continue
			}
			slog.Info("ca reloaded")
		}
	}()

	// Metrics
	shutdownMeter, err := otel.InitMeter(cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		if err := shutdownMeter(context.Background()); err != nil {
			slog.Warn("meter shutdown failed", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---
	store := postgres.NewStore(pool)
	productSvc := service.NewProductService(store, queue, productCache, cfg.Cache.ProductTTL)
	poolSvc := service.NewPoolManagerService(store, sign, queue, metrics, cfg.Regen.MaxConcurrent)
	hypervisorSvc := service.NewHypervisorService(store, metrics)
	regenJob := service.NewCertRegenJob(poolSvc)

	// Regeneration requests flow through the queue; the subscriber is the
	// worker side of the product-update data flow.
	cancelRegen, err := regenJob.StartRegenSubscriber(ctx, queue)
	if err != nil {
		return fmt.Errorf("regen subscriber: %w", err)
	}
	defer cancelRegen()

	// Periodic sweep backstops lost regeneration requests.
	if cfg.Regen.SweepSchedule != "" {
		sched := scheduler.New()
		err := sched.Schedule(cfg.Regen.SweepSchedule, "regen-sweep", regenJob, scheduler.ProductSweepSource(store))
		if err != nil {
			return fmt.Errorf("sweep schedule: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		slog.Info("regen sweep scheduled", "cron", cfg.Regen.SweepSchedule)
	}

	// --- HTTP ---
	handlers := &enthttp.Handlers{
		Products:    productSvc,
		Pools:       poolSvc,
		Hypervisors: hypervisorSvc,
		Queue:       queue,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(queue))
	enthttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports process and queue health.
func healthHandler(queue *entnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		NATS   bool   `json:"nats"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", NATS: queue.IsConnected()}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
