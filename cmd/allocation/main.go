package main

import (
	"context"
	"time"

	"concierge/internal/allocation/handler"
	"concierge/internal/allocation/service"
	"concierge/internal/bootstrap"
	"concierge/pkg/app"
	"concierge/pkg/auth"
	"concierge/pkg/config"
)

const ServiceName = "allocation"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Allocation service")
	runtime, err := bootstrap.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize allocation service", "error", err)
	}

	serverApp := app.NewApplication()
	serverApp.SetApp(
		cfg,
		handler.NewHealthHandler(runtime.Store, cfg.Log),
		handler.NewRequestHandler(runtime.Service, cfg.Log),
		auth.NewJWTResolver(cfg.JWTSecret),
	)

	if cfg.ReconcileInterval > 0 {
		serverApp.AddWorker(func(ctx context.Context) {
			runReconciler(ctx, cfg, runtime.Service)
		})
	}
	serverApp.OnShutdown("allocation runtime", runtime.Close)
	serverApp.Run()
}

// runReconciler sweeps expired requests and repairs journeys every
// ReconcileInterval until ctx ends.
func runReconciler(ctx context.Context, cfg *config.Config, svc service.AllocationService) {
	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	cfg.Log.Info("Reconciler started", "interval", cfg.ReconcileInterval)

	for {
		select {
		case <-ctx.Done():
			cfg.Log.Info("Reconciler stopped")
			return
		case <-ticker.C:
			expired, err := svc.Expire(ctx)
			if err != nil {
				cfg.Log.Error("Expiry pass failed", "error", err)
			}
			reconciled, err := svc.ReconcileAll(ctx)
			if err != nil {
				cfg.Log.Error("Reconcile pass failed", "error", err)
			}
			cfg.Log.Info("Reconcile pass finished", "expired", expired, "reconciled", reconciled)
		}
	}
}
