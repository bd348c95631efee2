package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/storage"
	"github.com/KevinKickass/OpenPrinterCore/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully", zap.String("path", *configPath))

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}

	lifecycle, err := system.NewLifecycleManager(store, cfg, logger)
	if err != nil {
		storage.Close(store)
		logger.Fatal("Failed to build system", zap.Error(err))
	}

	if err := lifecycle.Start(ctx); err != nil {
		lifecycle.Shutdown(ctx)
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("OpenPrinterCore started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenPrinterCore stopped successfully")
}
