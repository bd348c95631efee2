package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/fleet"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State          string         `json:"state"`
	Mode           string         `json:"mode"`
	Storage        string         `json:"storage"`
	StorageHealthy bool           `json:"storage_healthy"`
	PrinterCount   int            `json:"printer_count"`
	ReadyPrinters  int            `json:"ready_printers"`
	Printers       map[string]int `json:"printers_by_status"`
	LocationCount  int            `json:"location_count"`
}

type LifecycleManager interface {
	Config() *config.Config
	Store() printer.Store
	Fleet() *fleet.Fleet
	Directory() *fleet.Directory
	Dispatcher() *fleet.Dispatcher
	GetCurrentStatus(ctx context.Context) SystemStatus
	ReloadDirectory(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
