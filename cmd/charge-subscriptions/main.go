// Command charge-subscriptions runs a single charge cycle and exits.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AnuragDani/subscription-charger/internal/app"
	"github.com/AnuragDani/subscription-charger/internal/config"
	"github.com/AnuragDani/subscription-charger/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.New("charge-subscriptions", "info").Error("failed to load configuration", "error", err)
		return 1
	}
	log := logger.New("charge-subscriptions", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize charge pipeline", "error", err)
		return 1
	}
	defer services.Close()

	result, err := services.Orchestrator.RunChargeCycle(ctx)
	if err != nil {
		if result != nil {
			log.Warn("charge cycle interrupted", "processed", result.Processed, "error", err)
			return 0
		}
		log.Error("charge cycle failed", "error", err)
		return 1
	}

	log.Info("charge cycle complete",
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"mutation_failures", result.MutationFailures,
	)
	return 0
}
