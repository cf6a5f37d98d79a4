// Package app wires the pipeline together and owns the process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"coldflow/internal/config"
	"coldflow/internal/db"
	"coldflow/internal/dispatch"
	"coldflow/internal/engage"
	"coldflow/internal/handlers"
	"coldflow/internal/ingest"
	"coldflow/internal/model"
	"coldflow/internal/quota"
	"coldflow/internal/repository"
	"coldflow/internal/scheduler"
	"coldflow/internal/server"
	"coldflow/internal/tokens"
	"coldflow/internal/transport"
	"coldflow/internal/vault"
)

// Run initializes and starts the application.
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)
	logger := logrus.StandardLogger()

	logger.Info("Starting Coldflow delivery service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	v, err := vault.New(cfg.Crypto.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token vault: %w", err)
	}

	gmail := transport.NewGmailTransport(
		cfg.OAuth.ClientID,
		cfg.OAuth.ClientSecret,
		cfg.OAuth.RedirectURL,
		cfg.OAuth.SendTimeout,
	)
	registry := transport.Registry{model.ProviderGmail: gmail}

	tokenManager := tokens.NewManager(repo, v, registry, cfg.Scheduler.MaxConcurrentRefreshes, logger)
	tracker := quota.NewTracker(repo)
	engine := dispatch.NewEngine(repo, tracker, tokenManager, registry,
		cfg.Scheduler.BatchSize, cfg.Tracking.BaseURL, cfg.OAuth.SendTimeout, logger)
	ingestService := ingest.NewService(repo, logger)
	engageService := engage.NewService(repo, logger)

	sched := scheduler.NewScheduler(&cfg.Scheduler, engine, tokenManager, tracker, repo, logger)

	h := handlers.NewHandlers(repo, ingestService, engageService, engine,
		tokenManager, tracker, gmail, v, sched, cfg.API.AuthToken, cfg.Scheduler.RetentionDays, logger)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logger.Errorf("Failed to stop scheduler: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
