package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/fleet"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/KevinKickass/OpenPrinterCore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const twoLocations = `
locations:
  - id: office
    default_printer: printer-1
    printers: [printer-1, printer-2]
  - id: lab
    printers: [printer-2]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPPort = 0
	cfg.Engine.Mode = string(printer.ModePerRequest)
	cfg.Printers = []config.PrinterConfig{
		{ID: "printer-1", Name: "Front desk"},
		{ID: "printer-2"},
	}
	return cfg
}

func TestLifecycle_StartAndShutdown(t *testing.T) {
	ctx := context.Background()
	lm, err := NewLifecycleManager(storage.NewMemoryStore(0), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, lm.State())

	require.NoError(t, lm.Start(ctx))
	assert.Equal(t, StateRunning, lm.State())

	status := lm.GetCurrentStatus(ctx)
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, "per_request", status.Mode)
	assert.Equal(t, "memory", status.Storage)
	assert.True(t, status.StorageHealthy)
	assert.Equal(t, 2, status.PrinterCount)
	assert.Equal(t, 2, status.ReadyPrinters)
	assert.Equal(t, 1, status.LocationCount)

	summary, err := lm.Fleet().Summary(ctx, "printer-1")
	require.NoError(t, err)
	assert.Equal(t, "Front desk", summary.Name)

	require.NoError(t, lm.Shutdown(ctx))
	assert.Equal(t, StateStopped, lm.State())
	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}

	// second call is a no-op
	require.NoError(t, lm.Shutdown(ctx))
}

func TestLifecycle_DefaultDirectoryHasEveryPrinter(t *testing.T) {
	lm, err := NewLifecycleManager(storage.NewMemoryStore(0), testConfig(t), zap.NewNop())
	require.NoError(t, err)

	loc, ok := lm.Directory().Location(fleet.DefaultLocationID)
	require.True(t, ok)
	assert.Equal(t, "printer-1", loc.DefaultPrinterID)
	assert.Equal(t, []string{"printer-1", "printer-2"}, loc.PrinterIDs)
}

func TestLifecycle_DispatchesThroughDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoLocations), 0o600))

	cfg := testConfig(t)
	cfg.Fleet.DirectoryFile = path
	lm, err := NewLifecycleManager(storage.NewMemoryStore(0), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, lm.Start(ctx))
	t.Cleanup(func() { lm.Shutdown(ctx) })

	res, err := lm.Dispatcher().Submit(ctx, fleet.PrintRequest{
		LocationID: "lab",
		Spec:       printer.WorkSpec{DocumentName: "poster.pdf", Pages: 1, Color: true},
	})
	require.NoError(t, err)
	assert.Equal(t, fleet.OutcomeSubmitted, res.Outcome)
	assert.Equal(t, "printer-2", res.PrinterID)
}

func TestLifecycle_ReloadDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoLocations), 0o600))

	cfg := testConfig(t)
	cfg.Fleet.DirectoryFile = path
	lm, err := NewLifecycleManager(storage.NewMemoryStore(0), cfg, zap.NewNop())
	require.NoError(t, err)

	// not running yet
	assert.ErrorIs(t, lm.ReloadDirectory(ctx), printer.ErrInvalidState)

	require.NoError(t, lm.Start(ctx))
	t.Cleanup(func() { lm.Shutdown(ctx) })
	assert.Len(t, lm.Directory().Locations(), 2)

	require.NoError(t, os.WriteFile(path, []byte("locations:\n  - id: office\n    printers: [printer-1]\n"), 0o600))
	require.NoError(t, lm.ReloadDirectory(ctx))
	assert.Len(t, lm.Directory().Locations(), 1)
	assert.Equal(t, StateRunning, lm.State())

	require.NoError(t, os.WriteFile(path, []byte("locations: nope\n"), 0o600))
	assert.ErrorIs(t, lm.ReloadDirectory(ctx), printer.ErrValidation)
	assert.Len(t, lm.Directory().Locations(), 1)
	assert.Equal(t, StateRunning, lm.State())
}

func TestNewLifecycleManager_Rejects(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Mode = "sometimes"
	_, err := NewLifecycleManager(storage.NewMemoryStore(0), cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Fleet.DirectoryFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewLifecycleManager(storage.NewMemoryStore(0), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestValidateTransition(t *testing.T) {
	testCases := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateStopped, StateInitializing, true},
		{StateInitializing, StateRunning, true},
		{StateRunning, StateUpdating, true},
		{StateUpdating, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateError, StateStopping, true},
		{StateStopped, StateRunning, false},
		{StateRunning, StateInitializing, false},
		{StateUpdating, StateStopping, false},
	}
	for _, tc := range testCases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			err := ValidateTransition(tc.from, tc.to)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
