package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tonearm/royaltyd/internal/app"
	"github.com/tonearm/royaltyd/internal/config"
	"github.com/tonearm/royaltyd/internal/fx"
	"github.com/tonearm/royaltyd/internal/gateway"
	httpapp "github.com/tonearm/royaltyd/internal/http"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
	"github.com/tonearm/royaltyd/internal/worker"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Initialize DB
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// External collaborators
	rates := fx.NewClient(cfg.FXURL)
	payments := gateway.NewClient(cfg.GatewayURL)

	// Initialize Services
	royalties := app.NewRoyaltyService(db, appLogger)
	payouts := app.NewPayoutService(db, payments, appLogger)
	agg := app.NewAggregationService(db, rates, cfg.SystemCurrency, cfg.MinimumPayoutAmount(), cfg.ReversalCooldown, appLogger)
	analytics := app.NewAnalyticsService(db, appLogger)
	keys := app.NewApiKeyService(db, appLogger)

	// Initialize Worker
	w := worker.NewWorker(agg, payouts, analytics, keys, cfg, appLogger)
	if err := w.Start(); err != nil {
		appLogger.Error("Failed to start worker", "error", err)
		os.Exit(1)
	}
	defer w.Stop()

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Routes
	h := httpapp.NewHandler(royalties, payouts, agg, analytics, keys, db, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
