package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"go.uber.org/zap"
)

// Fleet is the registry of printer engines, keyed by printer id and kept
// in registration order.
type Fleet struct {
	mu      sync.RWMutex
	engines map[string]*printer.Engine
	order   []string
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Fleet {
	return &Fleet{
		engines: make(map[string]*printer.Engine),
		logger:  logger,
	}
}

func (f *Fleet) Register(e *printer.Engine) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.engines[e.ID()]; exists {
		return fmt.Errorf("printer %s already registered", e.ID())
	}
	f.engines[e.ID()] = e
	f.order = append(f.order, e.ID())

	f.logger.Info("Printer registered",
		zap.String("printer", e.ID()),
		zap.String("mode", string(e.Mode())))
	return nil
}

func (f *Fleet) Get(id string) (*printer.Engine, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	e, ok := f.engines[id]
	return e, ok
}

// Engine returns the printer or a wrapped printer.ErrNotFound.
func (f *Fleet) Engine(id string) (*printer.Engine, error) {
	e, ok := f.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: printer %s", printer.ErrNotFound, id)
	}
	return e, nil
}

func (f *Fleet) List() []*printer.Engine {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*printer.Engine, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.engines[id])
	}
	return out
}

func (f *Fleet) Summary(ctx context.Context, id string) (printer.DeviceSummary, error) {
	e, err := f.Engine(id)
	if err != nil {
		return printer.DeviceSummary{}, err
	}
	return e.Summary(ctx)
}

// Summaries lists every registered printer. Printers whose state cannot
// be read are skipped and logged.
func (f *Fleet) Summaries(ctx context.Context) []printer.DeviceSummary {
	engines := f.List()
	out := make([]printer.DeviceSummary, 0, len(engines))
	for _, e := range engines {
		s, err := e.Summary(ctx)
		if err != nil {
			f.logger.Warn("Failed to read printer summary", zap.String("printer", e.ID()), zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	return out
}

func (f *Fleet) SubmitJob(ctx context.Context, printerID string, spec printer.WorkSpec) (printer.Job, error) {
	e, err := f.Engine(printerID)
	if err != nil {
		return printer.Job{}, err
	}
	return e.SubmitJob(ctx, spec)
}

// InitAll initializes every engine, stopping at the first failure.
func (f *Fleet) InitAll(ctx context.Context) error {
	for _, e := range f.List() {
		if err := e.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize printer %s: %w", e.ID(), err)
		}
	}
	return nil
}

func (f *Fleet) StartAll() error {
	for _, e := range f.List() {
		if err := e.Start(); err != nil {
			return fmt.Errorf("failed to start printer %s: %w", e.ID(), err)
		}
	}
	return nil
}

func (f *Fleet) StopAll() {
	for _, e := range f.List() {
		e.Stop()
	}
}
