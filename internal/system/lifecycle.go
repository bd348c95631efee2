package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/api/rest"
	"github.com/KevinKickass/OpenPrinterCore/internal/api/websocket"
	"github.com/KevinKickass/OpenPrinterCore/internal/clock"
	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/fleet"
	"github.com/KevinKickass/OpenPrinterCore/internal/interfaces"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/KevinKickass/OpenPrinterCore/internal/storage"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config     *config.Config
	store      printer.Store
	fleet      *fleet.Fleet
	selector   *fleet.Selector
	dispatcher *fleet.Dispatcher
	hub        *websocket.Hub
	clock      clock.Clock
	mode       printer.Mode
	logger     *zap.Logger

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

type Option func(*LifecycleManager)

// WithClock drives every engine and scheduler from clk.
func WithClock(clk clock.Clock) Option {
	return func(lm *LifecycleManager) { lm.clock = clk }
}

// NewLifecycleManager builds one engine per configured printer on the
// shared store and wires them into the fleet, dispatcher and event hub.
// Nothing runs until Start.
func NewLifecycleManager(store printer.Store, cfg *config.Config, logger *zap.Logger, opts ...Option) (*LifecycleManager, error) {
	mode, err := printer.ParseMode(cfg.Engine.Mode)
	if err != nil {
		return nil, err
	}

	lm := &LifecycleManager{
		config:       cfg,
		store:        store,
		fleet:        fleet.New(logger),
		hub:          websocket.NewHub(logger),
		clock:        clock.Real(),
		mode:         mode,
		logger:       logger,
		currentState: StateStopped,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lm)
	}

	for i, pc := range cfg.Printers {
		if err := lm.fleet.Register(lm.newEngine(i, pc)); err != nil {
			return nil, err
		}
	}

	directory, err := lm.loadDirectory()
	if err != nil {
		return nil, err
	}
	lm.selector = fleet.NewSelector(directory, lm.fleet, cfg.Fleet.MinResourceLevel)
	lm.dispatcher = fleet.NewDispatcher(lm.selector, lm.fleet, cfg.Fleet.RequireConfirmation, logger)

	return lm, nil
}

func (lm *LifecycleManager) newEngine(index int, pc config.PrinterConfig) *printer.Engine {
	ec := lm.config.Engine
	settings := printer.DefaultSettings()
	settings.Name = pc.Name
	if settings.Name == "" {
		settings.Name = pc.ID
	}
	settings.ColdStart = pc.ColdStart
	settings.TickInterval = ec.TickInterval
	settings.PagesPerMinute = ec.PagesPerMinute
	settings.ConsumableCapacity = ec.ConsumableCapacity
	settings.InitialConsumables = ec.InitialConsumables
	settings.ConsumableKind = printer.ConsumableKind(ec.ConsumableKind)
	settings.LowResourceThreshold = ec.LowResourceThreshold
	settings.ConsumptionProbability = ec.ConsumptionProbability
	settings.FaultProbability = ec.FaultProbability
	settings.FaultInjection = ec.FaultInjection

	var scheduler printer.Scheduler = printer.NewReloadOnAccess()
	if lm.mode == printer.ModeBackground {
		scheduler = printer.NewBackgroundScheduler(ec.TickInterval, ec.WarmupDelay, lm.clock, lm.logger.With(zap.String("printer", pc.ID)))
	}

	seed := ec.RandomSeed
	if seed != 0 {
		// distinct but reproducible streams per printer
		seed += uint64(index)
	}

	return printer.NewEngine(pc.ID, lm.store, scheduler, settings, lm.logger,
		printer.WithClock(lm.clock),
		printer.WithRandom(printer.NewRandomSource(seed)),
		printer.WithNotifier(lm.hub),
	)
}

func (lm *LifecycleManager) loadDirectory() (*fleet.Directory, error) {
	path := lm.config.Fleet.DirectoryFile
	if path == "" {
		ids := make([]string, 0, len(lm.config.Printers))
		for _, pc := range lm.config.Printers {
			ids = append(ids, pc.ID)
		}
		return fleet.SingleLocation(ids)
	}

	directory, err := fleet.LoadDirectory(path)
	if err != nil {
		return nil, err
	}
	for _, id := range directory.PrinterIDs() {
		if _, ok := lm.fleet.Get(id); !ok {
			lm.logger.Warn("Location directory names an unconfigured printer", zap.String("printer", id))
		}
	}
	lm.logger.Info("Location directory loaded",
		zap.String("path", path),
		zap.Int("locations", len(directory.Locations())))
	return directory, nil
}

// Start initializes every printer, starts the schedulers and serves the API.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenPrinterCore",
		zap.String("mode", string(lm.mode)),
		zap.String("storage", lm.store.Type()),
		zap.Int("printers", len(lm.config.Printers)))

	if err := lm.setState(StateInitializing); err != nil {
		return err
	}

	go lm.hub.Run()

	if err := lm.fleet.InitAll(ctx); err != nil {
		lm.setError(err)
		return err
	}
	if err := lm.fleet.StartAll(); err != nil {
		lm.setError(err)
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if err := lm.setState(StateRunning); err != nil {
		return err
	}

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort))
	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.hub)
	return lm.restServer.Start()
}

// Shutdown stops schedulers, the API and the hub, then closes the store.
// Only the first call does anything.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		if err := lm.setState(StateStopping); err != nil {
			lm.logger.Warn("Unexpected shutdown state", zap.Error(err))
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		if err := lm.setState(StateStopped); err != nil {
			lm.logger.Warn("Unexpected shutdown state", zap.Error(err))
		}
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	// schedulers first so no tick writes after the store is closed
	lm.fleet.StopAll()

	var errs []error
	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
	}

	lm.hub.Stop()

	if err := storage.Close(lm.store); err != nil {
		errs = append(errs, fmt.Errorf("storage close failed: %w", err))
	}

	if len(errs) > 0 {
		return errs[0]
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

// ReloadDirectory re-reads the location directory file and swaps it in.
// The previous directory stays active when the file is invalid.
func (lm *LifecycleManager) ReloadDirectory(ctx context.Context) error {
	if err := lm.setState(StateUpdating); err != nil {
		return fmt.Errorf("%w: cannot reload: %v", printer.ErrInvalidState, err)
	}

	directory, err := lm.loadDirectory()
	if err == nil {
		lm.selector.SetDirectory(directory)
	}

	if serr := lm.setState(StateRunning); serr != nil {
		return serr
	}
	if err != nil {
		lm.logger.Error("Location directory reload failed", zap.Error(err))
		return fmt.Errorf("%w: %v", printer.ErrValidation, err)
	}
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) error {
	lm.stateMu.Lock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.stateMu.Unlock()
		return err
	}
	lm.currentState = state
	if state != StateError {
		lm.lastError = ""
	}
	lm.stateMu.Unlock()

	lm.broadcastStatus()
	return nil
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err.Error()
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// State returns the lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) broadcastStatus() {
	lm.stateMu.RLock()
	data := map[string]any{
		"state":     lm.currentState.String(),
		"error":     lm.lastError,
		"timestamp": lm.clock.Now().Unix(),
	}
	lm.stateMu.RUnlock()

	lm.hub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, data))
}

// GetCurrentStatus summarizes the system for the status endpoint.
func (lm *LifecycleManager) GetCurrentStatus(ctx context.Context) interfaces.SystemStatus {
	summaries := lm.fleet.Summaries(ctx)
	byStatus := make(map[string]int)
	ready := 0
	for _, s := range summaries {
		byStatus[string(s.Status)]++
		if s.Status == printer.StatusReady {
			ready++
		}
	}

	return interfaces.SystemStatus{
		State:          lm.State().String(),
		Mode:           string(lm.mode),
		Storage:        lm.store.Type(),
		StorageHealthy: lm.store.HealthCheck(ctx),
		PrinterCount:   len(lm.fleet.List()),
		ReadyPrinters:  ready,
		Printers:       byStatus,
		LocationCount:  len(lm.selector.Directory().Locations()),
	}
}

func (lm *LifecycleManager) Config() *config.Config { return lm.config }

func (lm *LifecycleManager) Store() printer.Store { return lm.store }

func (lm *LifecycleManager) Fleet() *fleet.Fleet { return lm.fleet }

func (lm *LifecycleManager) Directory() *fleet.Directory { return lm.selector.Directory() }

func (lm *LifecycleManager) Dispatcher() *fleet.Dispatcher { return lm.dispatcher }

func (lm *LifecycleManager) Hub() *websocket.Hub { return lm.hub }
