package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/worldofdoors/doorline/internal/call"
	"github.com/worldofdoors/doorline/internal/callstore"
	"github.com/worldofdoors/doorline/internal/config"
	"github.com/worldofdoors/doorline/internal/events"
	"github.com/worldofdoors/doorline/internal/httpapi"
	"github.com/worldofdoors/doorline/internal/observability"
	"github.com/worldofdoors/doorline/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := callstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("call store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		logger.Info("no DATABASE_URL, call records kept in memory")
	}

	publisher, err := events.NewPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		log.Fatalf("event publisher init failed: %v", err)
	}
	defer publisher.Close()
	if cfg.NATSURL == "" {
		logger.Info("no NATS_URL, outcome events disabled")
	}

	gateway := schedule.NewClient(cfg.SchedulingAPIURL, cfg.SchedulingAPITimeout, logger, metrics)

	calls := call.NewManager(call.ManagerConfig{
		Gateway:           gateway,
		Store:             store,
		Publisher:         publisher,
		Logger:            logger,
		Metrics:           metrics,
		InactivityTimeout: cfg.CallInactivityTimeout,
		DurationHours:     cfg.AppointmentDurationHours,
	})

	api := httpapi.New(cfg, calls, store, logger, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	calls.StartJanitor(runCtx, 15*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
