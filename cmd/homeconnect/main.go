package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/S1moT3ch/AcsaHomeConnectV2/config"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/api"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/gateway"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/logging"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/daikin"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/netatmo"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/storage"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/storage/sqlite"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/token"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	logger.Info("Initializing SQLite database",
		"component", "main",
		"path", cfg.Database.Path,
	)
	var store storage.Storage
	store, err = sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(token.MetricsCollectors()...)

	tokenManager := token.NewManager(store, cfg.Daikin, cfg.Netatmo, logger)

	daikinClient := daikin.NewClient(cfg.Daikin, tokenManager)
	netatmoClient := netatmo.NewClient(cfg.Netatmo, tokenManager)

	dispatcher := gateway.New(tokenManager, daikinClient, netatmoClient, store, logger)

	router := api.NewRouter(api.RouterConfig{
		Dispatcher: dispatcher,
		Tokens:     tokenManager,
		Gatherer:   registry,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			"component", "main",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
		)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown",
			"component", "main",
			"signal", sig.String(),
		)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete", "component", "main")
	}

	return nil
}
