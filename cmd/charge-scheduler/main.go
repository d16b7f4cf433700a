package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/app"
	"github.com/AnuragDani/subscription-charger/internal/config"
	"github.com/AnuragDani/subscription-charger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("charge-scheduler", "info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New("charge-scheduler", cfg.LogLevel)

	ctx := context.Background()
	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize charge pipeline", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	var (
		resultCache ResultCache
		redisHealth HealthChecker
	)
	if services.Redis != nil {
		resultCache = services.Redis
		redisHealth = pingFunc(services.Redis.HealthCheck)
	}

	scheduler := NewScheduler(services.Orchestrator, cfg.ChargeJobSchedule, 0, resultCache, log)
	handler := NewHandler(scheduler, services.Store, services.Ledger, services.DB, redisHealth, services.Registry, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	if err := scheduler.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("server is shutting down")

		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("could not gracefully shut down the server", "error", err)
		}
		close(done)
	}()

	log.Info("charge scheduler starting", "port", cfg.Port, "schedule", cfg.ChargeJobSchedule)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("could not listen", "addr", srv.Addr, "error", err)
		os.Exit(1)
	}

	<-done
	log.Info("server stopped")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
