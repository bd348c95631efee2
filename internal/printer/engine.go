package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/clock"
	"go.uber.org/zap"
)

// Store is the persistence contract the engine depends on. Load returns
// (nil, nil) when nothing was ever saved under key. Save is
// last-writer-wins. HealthCheck never panics and only reports
// availability.
type Store interface {
	Load(ctx context.Context, key string) (*State, error)
	Save(ctx context.Context, key string, state *State) error
	HealthCheck(ctx context.Context) bool
	Clear(ctx context.Context, key string) error
	Type() string
}

// DefaultKey is the slot used when a printer has no explicit key.
const DefaultKey = "default"

// Engine owns the lifecycle of one printer. It is the only writer of its
// State in background mode; in per-request mode every call reloads the
// persisted snapshot first.
type Engine struct {
	id        string
	key       string
	store     Store
	scheduler Scheduler
	settings  Settings
	logger    *zap.Logger
	clock     clock.Clock
	random    RandomSource
	notifier  Notifier

	mu    sync.Mutex
	state *State
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithRandom(r RandomSource) Option {
	return func(e *Engine) { e.random = r }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithStorageKey overrides the storage slot, which defaults to the printer id.
func WithStorageKey(key string) Option {
	return func(e *Engine) { e.key = key }
}

func NewEngine(id string, store Store, scheduler Scheduler, settings Settings, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		id:        id,
		key:       id,
		store:     store,
		scheduler: scheduler,
		settings:  settings,
		logger:    logger.With(zap.String("printer", id)),
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.key == "" {
		e.key = DefaultKey
	}
	if e.random == nil {
		e.random = NewRandomSource(0)
	}
	return e
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) Mode() Mode { return e.scheduler.Mode() }

func (e *Engine) perRequest() bool { return e.scheduler.Mode() == ModePerRequest }

// Init loads the persisted snapshot, creating and saving defaults when
// none exists, and starts the warm-up sequence for an offline printer.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	st, err := e.loadLocked(ctx)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	now := e.clock.Now()
	created := false
	if st == nil {
		st = NewDefaultState(e.settings, now)
		st.addLog(now, "info", "Printer initialized with default state")
		created = true
	}
	reconciled := e.scheduler.Reconcile(st)
	e.state = st

	if created || reconciled {
		if err := e.saveLocked(ctx, e.state); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	status := e.state.Status
	e.mu.Unlock()

	e.logger.Info("Printer engine initialized",
		zap.String("status", string(status)),
		zap.String("mode", string(e.Mode())),
		zap.Bool("created", created))

	if status == StatusOffline {
		e.scheduler.WarmUp(e, false)
	}
	return nil
}

// Start hands the engine to its scheduler.
func (e *Engine) Start() error {
	return e.scheduler.Start(e)
}

func (e *Engine) Stop() {
	e.scheduler.Stop()
}

func (e *Engine) loadLocked(ctx context.Context) (*State, error) {
	st, err := e.store.Load(ctx, e.key)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStorageUnavailable, e.key, err)
	}
	if st != nil {
		st.normalize(e.settings)
	}
	return st, nil
}

// refreshLocked makes e.state current. Per-request engines reload from
// the store, reconcile and run one catch-up tick on every access.
func (e *Engine) refreshLocked(ctx context.Context) error {
	if e.state != nil && !e.perRequest() {
		return nil
	}

	st, err := e.loadLocked(ctx)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if st == nil {
		st = NewDefaultState(e.settings, now)
	}

	previous := st.Status
	changed := e.scheduler.Reconcile(st)
	var events []Event
	if e.perRequest() {
		advanced, evs := e.advance(st, now)
		changed = changed || advanced
		events = evs
	}
	events = withStatusChange(previous, st.Status, now, events)
	e.state = st

	if changed {
		if err := e.saveLocked(ctx, e.state); err != nil {
			e.logger.Warn("Failed to persist reconciled state", zap.Error(err))
		}
	}
	e.emit(events...)
	return nil
}

// saveLocked stamps and persists st. The version only moves when the
// save succeeds.
func (e *Engine) saveLocked(ctx context.Context, st *State) error {
	expected := st.Version
	if e.perRequest() {
		current, err := e.store.Load(ctx, e.key)
		if err != nil {
			return fmt.Errorf("%w: load %s: %v", ErrStorageUnavailable, e.key, err)
		}
		if current != nil && current.Version != expected {
			return fmt.Errorf("%w: %s is at version %d, expected %d", ErrConflict, e.key, current.Version, expected)
		}
	}

	st.LastUpdated = e.clock.Now()
	st.Version = expected + 1
	if err := e.store.Save(ctx, e.key, st); err != nil {
		st.Version = expected
		return fmt.Errorf("%w: save %s: %v", ErrStorageUnavailable, e.key, err)
	}
	return nil
}

// mutate runs fn against a copy of the current state and commits the
// copy only when fn succeeds and the save goes through.
func (e *Engine) mutate(ctx context.Context, fn func(st *State, now time.Time) (string, []Event, error)) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.refreshLocked(ctx); err != nil {
		return "", err
	}

	next := e.state.Clone()
	now := e.clock.Now()
	msg, events, err := fn(next, now)
	if err != nil {
		return "", err
	}
	events = withStatusChange(e.state.Status, next.Status, now, events)
	if err := e.saveLocked(ctx, next); err != nil {
		return "", err
	}
	e.state = next
	e.emit(events...)
	return msg, nil
}

// read runs fn against the current state under the lock.
func (e *Engine) read(ctx context.Context, fn func(st *State)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.refreshLocked(ctx); err != nil {
		return err
	}
	fn(e.state)
	return nil
}

func (e *Engine) logf(st *State, now time.Time, level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	st.addLog(now, level, msg)
	e.logger.Debug(msg, zap.String("level", level))
}

func (e *Engine) Status(ctx context.Context) (StatusReport, error) {
	var report StatusReport
	err := e.read(ctx, func(st *State) {
		levels := make(map[ResourceID]float64, len(st.ResourceLevels))
		for k, v := range st.ResourceLevels {
			levels[k] = v
		}
		report = StatusReport{
			ID:                 e.id,
			Name:               st.Name,
			Status:             st.Status,
			ResourceLevels:     levels,
			ConsumableCount:    st.ConsumableCount,
			ConsumableCapacity: st.ConsumableCapacity,
			ConsumableKind:     st.ConsumableKind,
			CurrentJob:         cloneJob(st.CurrentJob),
			QueueLength:        len(st.Queue),
			Errors:             append([]Fault{}, st.Errors...),
			UptimeSeconds:      int64(e.clock.Now().Sub(st.StartedAt).Seconds()),
			LastUpdated:        st.LastUpdated,
			Version:            st.Version,
		}
	})
	return report, err
}

func (e *Engine) Queue(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := e.read(ctx, func(st *State) { jobs = cloneJobs(st.Queue) })
	return jobs, err
}

func (e *Engine) CompletedJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := e.read(ctx, func(st *State) { jobs = cloneJobs(st.CompletedJobs) })
	return jobs, err
}

func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	err := e.read(ctx, func(st *State) { stats = st.Clone().Statistics })
	return stats, err
}

func (e *Engine) Logs(ctx context.Context) ([]LogEntry, error) {
	var logs []LogEntry
	err := e.read(ctx, func(st *State) { logs = append([]LogEntry{}, st.Logs...) })
	return logs, err
}

func (e *Engine) Summary(ctx context.Context) (DeviceSummary, error) {
	var summary DeviceSummary
	err := e.read(ctx, func(st *State) { summary = st.summary(e.id) })
	return summary, err
}

// Snapshot returns a deep copy of the full state.
func (e *Engine) Snapshot(ctx context.Context) (*State, error) {
	var snapshot *State
	err := e.read(ctx, func(st *State) { snapshot = st.Clone() })
	return snapshot, err
}

// Job looks a job up in the queue or the completed history.
func (e *Engine) Job(ctx context.Context, jobID string) (Job, error) {
	var (
		job   Job
		found bool
	)
	err := e.read(ctx, func(st *State) {
		if i := st.findQueued(jobID); i >= 0 {
			job, found = *cloneJob(&st.Queue[i]), true
			return
		}
		for i := range st.CompletedJobs {
			if st.CompletedJobs[i].ID == jobID {
				job, found = *cloneJob(&st.CompletedJobs[i]), true
				return
			}
		}
	})
	if err != nil {
		return Job{}, err
	}
	if !found {
		return Job{}, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	return job, nil
}
