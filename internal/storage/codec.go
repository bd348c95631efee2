package storage

import (
	"encoding/json"
	"fmt"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
)

// Backend names accepted by Open.
const (
	BackendFile         = "file"
	BackendMemory       = "memory"
	BackendPostgres     = "postgres"
	BackendSQLite       = "sqlite"
	BackendGormPostgres = "gorm-postgres"
)

func slotKey(key string) string {
	if key == "" {
		return printer.DefaultKey
	}
	return key
}

func encodeState(state *printer.State) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("refusing to save nil state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*printer.State, error) {
	var state printer.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}
