package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/clock"
	"go.uber.org/zap"
)

// Mode selects how an engine is driven.
type Mode string

const (
	// ModeBackground runs a long-lived tick loop per printer.
	ModeBackground Mode = "background"
	// ModePerRequest reloads and catches up on every call, with no timers.
	ModePerRequest Mode = "per_request"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBackground, ModePerRequest:
		return Mode(s), nil
	case "":
		return ModeBackground, nil
	}
	return "", fmt.Errorf("unknown engine mode %q", s)
}

// Scheduler drives an engine over time.
type Scheduler interface {
	Mode() Mode
	Start(e *Engine) error
	Stop()
	// Reconcile adjusts a freshly loaded snapshot and reports whether it
	// changed.
	Reconcile(st *State) bool
	// WarmUp brings an offline printer back to ready.
	WarmUp(e *Engine, clearFaults bool)
}

// BackgroundScheduler ticks one engine at a fixed interval and runs the
// warm-up sequence on timers.
type BackgroundScheduler struct {
	interval time.Duration
	warmup   time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	timers   map[*clock.Timer]struct{}
}

func NewBackgroundScheduler(interval, warmup time.Duration, clk clock.Clock, logger *zap.Logger) *BackgroundScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &BackgroundScheduler{
		interval: interval,
		warmup:   warmup,
		clock:    clk,
		logger:   logger,
		timers:   make(map[*clock.Timer]struct{}),
	}
}

func (s *BackgroundScheduler) Mode() Mode { return ModeBackground }

func (s *BackgroundScheduler) Start(e *Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.stopped = false
	s.stopChan = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)

	s.wg.Add(1)
	go s.tickLoop(e, ticker)

	s.logger.Info("Scheduler started",
		zap.String("printer", e.ID()),
		zap.Duration("interval", s.interval))
	return nil
}

func (s *BackgroundScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *BackgroundScheduler) tickLoop(e *Engine, ticker *clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			e.Tick(ctx)
			cancel()
		}
	}
}

// Reconcile sends a printer whose warm-up was cut short by a restart back
// to offline, so Init runs the whole sequence again. Other snapshots are
// left alone.
func (s *BackgroundScheduler) Reconcile(st *State) bool {
	if st.Status != StatusWarmingUp {
		return false
	}
	st.Status = StatusOffline
	return true
}

// WarmUp moves offline to warming_up after one delay and warming_up to
// ready after another. Each step checks the status it expects, so a power
// cycle racing an earlier sequence does not double-apply.
func (s *BackgroundScheduler) WarmUp(e *Engine, clearFaults bool) {
	s.schedule(s.warmup, func() {
		ctx := context.Background()
		if !e.transition(ctx, []Status{StatusOffline}, StatusWarmingUp, false) {
			return
		}
		s.schedule(s.warmup, func() {
			if e.transition(ctx, []Status{StatusWarmingUp}, StatusReady, clearFaults) {
				s.logger.Info("Printer warmed up", zap.String("printer", e.ID()))
			}
		})
	})
}

// schedule runs f after d. Fired timers drop out of the pending set.
func (s *BackgroundScheduler) schedule(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	var t *clock.Timer
	t = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		f()
	})
	s.timers[t] = struct{}{}
}

// Pending reports how many warm-up steps are waiting to fire.
func (s *BackgroundScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ReloadOnAccess is the strategy for processes that cannot keep timers
// alive between requests.
type ReloadOnAccess struct{}

func NewReloadOnAccess() ReloadOnAccess { return ReloadOnAccess{} }

func (ReloadOnAccess) Mode() Mode { return ModePerRequest }

func (ReloadOnAccess) Start(*Engine) error { return nil }

func (ReloadOnAccess) Stop() {}

// Reconcile skips the warm-up: offline or warming printers come back
// ready, or busy when a job is running. Paused and error are kept.
func (ReloadOnAccess) Reconcile(st *State) bool {
	if st.Status != StatusOffline && st.Status != StatusWarmingUp {
		return false
	}
	st.Status = StatusReady
	if st.CurrentJob != nil {
		st.Status = StatusBusy
	}
	return true
}

func (ReloadOnAccess) WarmUp(*Engine, bool) {}
