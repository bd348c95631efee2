package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"go.uber.org/zap"
)

// Open builds the configured backend. When it cannot be constructed or
// fails its health check, the fallback backend is used instead.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (printer.Store, error) {
	primary := cfg.Storage.Backend
	store, err := openBackend(ctx, primary, cfg)
	if err == nil {
		if store.HealthCheck(ctx) {
			logger.Info("Storage backend ready", zap.String("backend", store.Type()))
			return store, nil
		}
		Close(store)
		err = fmt.Errorf("%s health check failed", primary)
	}

	fallback := cfg.Storage.Fallback
	if fallback == "" || fallback == primary {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	logger.Warn("Storage backend unavailable, falling back",
		zap.String("backend", primary),
		zap.String("fallback", fallback),
		zap.Error(err))

	store, ferr := openBackend(ctx, fallback, cfg)
	if ferr != nil {
		return nil, fmt.Errorf("failed to open fallback storage %s: %w (primary: %v)", fallback, ferr, err)
	}
	return store, nil
}

func openBackend(ctx context.Context, backend string, cfg *config.Config) (printer.Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(cfg.Storage.Directory)
	case BackendMemory:
		return NewMemoryStore(cfg.Storage.MemoryTTL), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.Database)
	case BackendSQLite:
		db, err := OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, BackendSQLite), nil
	case BackendGormPostgres:
		db, err := OpenGormPostgres(cfg.Database.DSN(), cfg.Database.MaxConnections)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, BackendGormPostgres), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

// Close releases backends that hold connections.
func Close(store printer.Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
