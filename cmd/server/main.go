package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/internal/api/rest"
	"github.com/cloudmodeler/ardsync/internal/ardoq"
	"github.com/cloudmodeler/ardsync/internal/azuredevops"
	"github.com/cloudmodeler/ardsync/internal/store"
	"github.com/cloudmodeler/ardsync/pkg/types"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Get configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "data/ardsync.db")

	// Open persistent store
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	// Platform client factories, one client per stored configuration
	newTarget := func(cfg *types.PlatformConfig) rest.TargetClient {
		return azuredevops.NewClient(cfg.BaseURL, cfg.Organization, cfg.Token, logger)
	}
	newSource := func(cfg *types.PlatformConfig) rest.SourceClient {
		return ardoq.NewClient(cfg.BaseURL, cfg.Token, logger)
	}

	// Create REST API handler
	restHandler := rest.NewHandler(st, newTarget, newSource, logger)

	// Setup REST API
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Route("/api/v1", func(r chi.Router) {
		restHandler.RegisterRoutes(r)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Start REST server
	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting REST API server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
