package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore persists snapshots through GORM, on SQLite or Postgres.
type GormStore struct {
	db   *gorm.DB
	kind string
}

func NewGormStore(db *gorm.DB, kind string) *GormStore {
	return &GormStore{db: db, kind: kind}
}

// OpenSQLite opens (creating if needed) a SQLite database and migrates it.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, DirPermsDefault); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenGormPostgres connects to Postgres through GORM and migrates it.
func OpenGormPostgres(dsn string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PrinterSnapshot{}); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func (s *GormStore) Load(ctx context.Context, key string) (*printer.State, error) {
	var rows []PrinterSnapshot
	err := s.db.WithContext(ctx).
		Where("device_key = ?", slotKey(key)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeState(rows[0].State)
}

func (s *GormStore) Save(ctx context.Context, key string, state *printer.State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	row := PrinterSnapshot{
		DeviceKey: slotKey(key),
		Version:   state.Version,
		State:     data,
		UpdatedAt: state.LastUpdated,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "state", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *GormStore) Clear(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("device_key = ?", slotKey(key)).
		Delete(&PrinterSnapshot{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *GormStore) HealthCheck(ctx context.Context) bool {
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

func (s *GormStore) Type() string { return s.kind }

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
