package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createStatesTable = `
	CREATE TABLE IF NOT EXISTS printer_states (
		device_key TEXT PRIMARY KEY,
		version    BIGINT NOT NULL,
		state      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// PostgresStore keeps one JSONB snapshot per printer key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createStatesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create printer_states table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Load(ctx context.Context, key string) (*printer.State, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT state FROM printer_states WHERE device_key = $1`,
		slotKey(key),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	return decodeState(data)
}

func (p *PostgresStore) Save(ctx context.Context, key string, state *printer.State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO printer_states (device_key, version, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (device_key) DO UPDATE
		SET version = EXCLUDED.version, state = EXCLUDED.state, updated_at = now()
	`, slotKey(key), state.Version, data)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (p *PostgresStore) Clear(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM printer_states WHERE device_key = $1`, slotKey(key)); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

func (p *PostgresStore) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx) == nil
}

func (p *PostgresStore) Type() string { return BackendPostgres }

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
