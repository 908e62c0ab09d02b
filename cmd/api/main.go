package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/annotate/internal/api"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/config"
	"github.com/timmy/annotate/internal/logger"
)

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv("annotate-review"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for deployments
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	output := flag.String("output", "", "Directory holding the checkpoint file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *output != "" {
		cfg.Annotate.OutputDir = *output
	}

	store := checkpoint.New(cfg.Annotate.OutputDir, cfg.Annotate.CheckpointFile)
	router := api.SetupRouter(store, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":       cfg.Server.Port,
			"mode":       cfg.Server.Mode,
			"checkpoint": store.Path(),
		}).Info("Starting review API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
