package printer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/clock"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/KevinKickass/OpenPrinterCore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// scriptedRandom replays queued values. Once drained, Float64 returns
// 0.99 so no random event fires.
type scriptedRandom struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (s *scriptedRandom) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return 0.99
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedRandom) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func (s *scriptedRandom) push(floats ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floats = append(s.floats, floats...)
}

type eventLog struct {
	mu     sync.Mutex
	events []printer.Event
}

func (l *eventLog) Notify(ev printer.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []printer.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]printer.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	engine *printer.Engine
	clock  *clock.FakeClock
	random *scriptedRandom
	store  printer.Store
	sched  printer.Scheduler
	events *eventLog
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	settings printer.Settings
	store    printer.Store
	mode     printer.Mode
	clock    *clock.FakeClock
	key      string
}

func withSettings(fn func(*printer.Settings)) harnessOption {
	return func(c *harnessConfig) { fn(&c.settings) }
}

func withStore(store printer.Store) harnessOption {
	return func(c *harnessConfig) { c.store = store }
}

func perRequest() harnessOption {
	return func(c *harnessConfig) { c.mode = printer.ModePerRequest }
}

func withClock(clk *clock.FakeClock) harnessOption {
	return func(c *harnessConfig) { c.clock = clk }
}

const warmup = 2 * time.Second

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{
		settings: printer.DefaultSettings(),
		store:    storage.NewMemoryStore(0),
		mode:     printer.ModeBackground,
		clock:    clock.Fake(epoch),
		key:      "printer-1",
	}
	cfg.settings.InitialConsumables = 50
	for _, opt := range opts {
		opt(&cfg)
	}

	var sched printer.Scheduler = printer.NewBackgroundScheduler(time.Second, warmup, cfg.clock, zap.NewNop())
	if cfg.mode == printer.ModePerRequest {
		sched = printer.NewReloadOnAccess()
	}

	h := &harness{
		clock:  cfg.clock,
		random: &scriptedRandom{},
		store:  cfg.store,
		sched:  sched,
		events: &eventLog{},
	}
	h.engine = printer.NewEngine(cfg.key, cfg.store, sched, cfg.settings, zap.NewNop(),
		printer.WithClock(cfg.clock),
		printer.WithRandom(h.random),
		printer.WithNotifier(h.events),
	)
	require.NoError(t, h.engine.Init(context.Background()))
	t.Cleanup(sched.Stop)
	return h
}

func (h *harness) tick(t *testing.T, d time.Duration) {
	t.Helper()
	h.clock.Advance(d)
	h.engine.Tick(context.Background())
	h.assertInvariants(t)
}

func (h *harness) state(t *testing.T) *printer.State {
	t.Helper()
	st, err := h.engine.Snapshot(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) assertInvariants(t *testing.T) {
	t.Helper()
	require.NoError(t, h.state(t).CheckInvariants())
}

func monoJob(pages int) printer.WorkSpec {
	return printer.WorkSpec{DocumentName: "report.pdf", Pages: pages, Quality: printer.QualityNormal}
}

func TestEngine_InitCreatesAndPersistsDefaults(t *testing.T) {
	h := newHarness(t)

	st := h.state(t)
	assert.Equal(t, printer.StatusReady, st.Status)
	assert.Equal(t, 50, st.ConsumableCount)
	assert.Equal(t, int64(1), st.Version)
	for _, r := range printer.Resources {
		assert.Equal(t, 100.0, st.ResourceLevels[r])
	}

	persisted, err := h.store.Load(context.Background(), "printer-1")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, int64(1), persisted.Version)
}

func TestEngine_InitReusesPersistedState(t *testing.T) {
	store := storage.NewMemoryStore(0)
	first := newHarness(t, withStore(store))
	_, err := first.engine.RefillResource(context.Background(), printer.ResourceCyan)
	require.NoError(t, err)

	second := newHarness(t, withStore(store))
	st := second.state(t)
	assert.Equal(t, int64(2), st.Version)
	assert.Contains(t, st.Logs[len(st.Logs)-1].Message, "Refilled cyan")
}

// A 10 page job runs to completion.
func TestEngine_JobRunsToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	assert.Equal(t, printer.JobQueued, job.Status)
	assert.Equal(t, 30, job.EstimatedDurationSeconds)

	h.tick(t, time.Second)
	st := h.state(t)
	assert.Equal(t, printer.StatusBusy, st.Status)
	require.NotNil(t, st.CurrentJob)
	assert.Equal(t, job.ID, st.CurrentJob.ID)

	h.tick(t, 15*time.Second)
	st = h.state(t)
	assert.InDelta(t, 50.0, st.Queue[0].Progress, 0.001)
	assert.InDelta(t, 50.0, st.CurrentJob.Progress, 0.001)

	h.tick(t, 15*time.Second)
	st = h.state(t)
	assert.Equal(t, printer.StatusReady, st.Status)
	assert.Empty(t, st.Queue)
	assert.Nil(t, st.CurrentJob)
	require.Len(t, st.CompletedJobs, 1)
	assert.Equal(t, printer.JobCompleted, st.CompletedJobs[0].Status)
	assert.Equal(t, 100.0, st.CompletedJobs[0].Progress)
	require.NotNil(t, st.CompletedJobs[0].CompletedAt)
	assert.Equal(t, 1, st.Statistics.TotalJobs)
	assert.Equal(t, 1, st.Statistics.SuccessfulJobs)
	assert.Equal(t, 10, st.Statistics.TotalPages)

	fetched, err := h.engine.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, printer.JobCompleted, fetched.Status)
}

func TestEngine_ConsumptionDrawsRequiredResources(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)

	h.random.push(0.1)
	h.tick(t, time.Second)

	st := h.state(t)
	// 0.1% per page * 10 pages spread over 30 ticks * 0.3 expected events
	assert.InDelta(t, 100-1.0/9, st.ResourceLevels[printer.ResourceBlack], 1e-9)
	assert.Equal(t, 100.0, st.ResourceLevels[printer.ResourceCyan])
	assert.Equal(t, 49, st.ConsumableCount)
	assert.Equal(t, 1, st.Statistics.ConsumablesUsed)
	assert.InDelta(t, 1.0/9, st.Statistics.ResourceConsumed[printer.ResourceBlack], 1e-9)
}

func TestEngine_ColorJobDrawsEveryInk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	spec := printer.WorkSpec{DocumentName: "poster.png", Pages: 2, Color: true, Quality: printer.QualityPhoto}
	_, err := h.engine.SubmitJob(ctx, spec)
	require.NoError(t, err)
	h.tick(t, time.Second)
	h.random.push(0.0)
	h.tick(t, time.Second)

	st := h.state(t)
	for _, r := range printer.Resources {
		assert.Less(t, st.ResourceLevels[r], 100.0, r)
	}
}

func TestEngine_LowResourceWarningIsNotDuplicated(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.LowResourceThreshold = 99 }))
	ctx := context.Background()

	_, err := h.engine.RunMaintenance(ctx, printer.MaintenanceCleaning)
	require.NoError(t, err)
	_, err = h.engine.RunMaintenance(ctx, printer.MaintenanceCleaning)
	require.NoError(t, err)

	st := h.state(t)
	require.Len(t, st.Errors, len(printer.Resources))
	for _, f := range st.Errors {
		assert.Equal(t, printer.FaultResourceLow, f.Kind)
		assert.Equal(t, printer.SeverityWarning, f.Severity)
	}
	// warnings do not block
	assert.Equal(t, printer.StatusReady, st.Status)
}

// Cancelling the running job frees the printer at once.
func TestEngine_CancelRunningJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)
	require.Equal(t, printer.StatusBusy, h.state(t).Status)

	msg, err := h.engine.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, msg, job.ID)

	st := h.state(t)
	assert.Equal(t, printer.StatusReady, st.Status)
	assert.Nil(t, st.CurrentJob)
	assert.Empty(t, st.Queue)
	assert.Empty(t, st.CompletedJobs)
	assert.Equal(t, 1, st.Statistics.FailedJobs)
	h.assertInvariants(t)

	_, err = h.engine.CancelJob(ctx, job.ID)
	assert.ErrorIs(t, err, printer.ErrNotFound)
}

func TestEngine_CancelQueuedJobKeepsRunningOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	second, err := h.engine.SubmitJob(ctx, monoJob(5))
	require.NoError(t, err)
	h.tick(t, time.Second)

	_, err = h.engine.CancelJob(ctx, second.ID)
	require.NoError(t, err)

	st := h.state(t)
	assert.Equal(t, printer.StatusBusy, st.Status)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, first.ID, st.Queue[0].ID)
	assert.Equal(t, first.ID, st.CurrentJob.ID)
}

func TestEngine_CancelUnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CancelJob(context.Background(), "job_0_missing")
	assert.ErrorIs(t, err, printer.ErrNotFound)
}

// Running out of paper stops processing until paper is loaded.
func TestEngine_ConsumableDepletionBlocksProgress(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.InitialConsumables = 1 }))
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)

	h.random.push(0.1)
	h.tick(t, 3*time.Second)

	st := h.state(t)
	assert.Equal(t, printer.StatusError, st.Status)
	assert.Equal(t, 0, st.ConsumableCount)
	require.NotEmpty(t, st.Errors)
	last := st.Errors[len(st.Errors)-1]
	assert.Equal(t, printer.FaultResourceDepleted, last.Kind)
	assert.Equal(t, printer.SeverityCritical, last.Severity)
	progress := st.Queue[0].Progress

	second, err := h.engine.SubmitJob(ctx, monoJob(2))
	require.NoError(t, err)
	assert.Equal(t, printer.JobQueued, second.Status)

	h.tick(t, 10*time.Second)
	st = h.state(t)
	assert.Equal(t, printer.StatusError, st.Status)
	assert.Equal(t, progress, st.Queue[0].Progress)
	assert.Len(t, st.Queue, 2)

	_, err = h.engine.LoadConsumable(ctx, 20, "")
	require.NoError(t, err)
	st = h.state(t)
	assert.Equal(t, printer.StatusReady, st.Status)
	assert.Equal(t, 20, st.ConsumableCount)
	assert.Empty(t, st.Errors)

	h.tick(t, time.Second)
	st = h.state(t)
	assert.Equal(t, printer.StatusBusy, st.Status)
	assert.Greater(t, st.Queue[0].Progress, progress)
}

func TestEngine_LoadConsumableKeepsErrorWhileOtherFaultsRemain(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) {
		s.InitialConsumables = 1
		s.FaultInjection = true
		s.FaultProbability = 0.5
	}))
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)

	// no consumption, then a jam
	h.random.push(0.99, 0.1)
	h.tick(t, time.Second)
	require.Equal(t, printer.StatusError, h.state(t).Status)

	_, err = h.engine.LoadConsumable(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, printer.StatusError, h.state(t).Status)

	_, err = h.engine.ClearFault(ctx, printer.FaultJam)
	require.NoError(t, err)
	assert.Equal(t, printer.StatusReady, h.state(t).Status)
}

func TestEngine_FaultInjection(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) {
		s.FaultInjection = true
		s.FaultProbability = 0.5
	}))
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)

	h.random.push(0.99, 0.1)
	h.random.ints = []int{1}
	h.tick(t, time.Second)

	st := h.state(t)
	assert.Equal(t, printer.StatusError, st.Status)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, printer.FaultHardwareError, st.Errors[0].Kind)
	assert.Equal(t, printer.SeverityError, st.Errors[0].Severity)
	// the job stays current while the printer is faulted
	require.NotNil(t, st.CurrentJob)
}

func TestEngine_FaultInjectionDisabled(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.FaultProbability = 1 }))
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	for range 5 {
		h.random.push(0.99, 0.0)
		h.tick(t, time.Second)
	}
	assert.Equal(t, printer.StatusBusy, h.state(t).Status)
	assert.Empty(t, h.state(t).Errors)
}

func TestEngine_PauseResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Pause(ctx)
	assert.ErrorIs(t, err, printer.ErrInvalidState)
	_, err = h.engine.Resume(ctx)
	assert.ErrorIs(t, err, printer.ErrInvalidState)

	_, err = h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)

	_, err = h.engine.Pause(ctx)
	require.NoError(t, err)
	st := h.state(t)
	assert.Equal(t, printer.StatusPaused, st.Status)
	assert.NotNil(t, st.CurrentJob, "pausing keeps the current job")

	h.tick(t, 10*time.Second)
	assert.Zero(t, h.state(t).Queue[0].Progress)

	_, err = h.engine.Pause(ctx)
	assert.ErrorIs(t, err, printer.ErrInvalidState)

	_, err = h.engine.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, printer.StatusBusy, h.state(t).Status)
}

func TestEngine_SubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		spec printer.WorkSpec
	}{
		{"zero pages", printer.WorkSpec{DocumentName: "a.pdf", Pages: 0}},
		{"negative pages", printer.WorkSpec{DocumentName: "a.pdf", Pages: -3}},
		{"blank name", printer.WorkSpec{DocumentName: "  ", Pages: 1}},
		{"unknown quality", printer.WorkSpec{DocumentName: "a.pdf", Pages: 1, Quality: "ultra"}},
		{"unknown paper", printer.WorkSpec{DocumentName: "a.pdf", Pages: 1, PaperSize: "a0"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.SubmitJob(ctx, tc.spec)
			assert.ErrorIs(t, err, printer.ErrValidation)
		})
	}

	st := h.state(t)
	assert.Empty(t, st.Queue)
	assert.Zero(t, st.Statistics.TotalJobs)
}

func TestEngine_SubmitDefaultsAndUniqueIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for range 50 {
		job, err := h.engine.SubmitJob(ctx, printer.WorkSpec{DocumentName: "memo.txt", Pages: 1})
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "duplicate id %s", job.ID)
		seen[job.ID] = true
		assert.Equal(t, printer.JobQueued, job.Status)
		assert.Equal(t, printer.QualityNormal, job.Spec.Quality)
		assert.Equal(t, printer.ConsumableA4, job.Spec.PaperSize)
		assert.Regexp(t, `^job_\d+_[0-9a-f]{8}$`, job.ID)
	}

	queue, err := h.engine.Queue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 50)
}

func TestEngine_SubmitAcceptedInAnyStatus(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.ColdStart = true }))

	require.Equal(t, printer.StatusOffline, h.state(t).Status)
	_, err := h.engine.SubmitJob(context.Background(), monoJob(1))
	require.NoError(t, err)

	// offline printers do not process
	h.engine.Tick(context.Background())
	assert.Equal(t, printer.JobQueued, h.state(t).Queue[0].Status)
}

func TestEngine_RefillResource(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.LowResourceThreshold = 99 }))
	ctx := context.Background()

	_, err := h.engine.RunMaintenance(ctx, printer.MaintenanceCleaning)
	require.NoError(t, err)
	require.Len(t, h.state(t).Errors, 4)

	msg, err := h.engine.RefillResource(ctx, printer.ResourceBlack)
	require.NoError(t, err)
	assert.Contains(t, msg, "black")

	st := h.state(t)
	assert.Equal(t, 100.0, st.ResourceLevels[printer.ResourceBlack])
	assert.Equal(t, 98.0, st.ResourceLevels[printer.ResourceCyan])
	assert.Len(t, st.Errors, 3)
	for _, f := range st.Errors {
		assert.NotEqual(t, string(printer.ResourceBlack), f.Resource)
	}

	_, err = h.engine.RefillResource(ctx, "orange")
	assert.ErrorIs(t, err, printer.ErrValidation)
}

func TestEngine_LoadConsumableClampsToCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.LoadConsumable(ctx, 10_000, "")
	require.NoError(t, err)
	st := h.state(t)
	assert.Equal(t, st.ConsumableCapacity, st.ConsumableCount)

	_, err = h.engine.LoadConsumable(ctx, 0, "")
	assert.ErrorIs(t, err, printer.ErrValidation)

	_, err = h.engine.LoadConsumable(ctx, 30, printer.ConsumableLetter)
	require.NoError(t, err)
	st = h.state(t)
	assert.Equal(t, printer.ConsumableLetter, st.ConsumableKind)
	assert.Equal(t, 30, st.ConsumableCount)
}

func TestEngine_RunMaintenance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, kind := range []printer.MaintenanceKind{
		printer.MaintenanceCleaning,
		printer.MaintenanceAlignment,
		printer.MaintenanceNozzleCheck,
	} {
		_, err := h.engine.RunMaintenance(ctx, kind)
		require.NoError(t, err, kind)
	}

	st := h.state(t)
	assert.Equal(t, 3, st.Statistics.MaintenanceCycles)
	assert.Equal(t, 1, st.Statistics.MaintenanceByKind[printer.MaintenanceCleaning])
	require.NotNil(t, st.Statistics.LastMaintenance)
	assert.Equal(t, 48, st.ConsumableCount)
	assert.InDelta(t, 97.0, st.ResourceLevels[printer.ResourceCyan], 1e-9)

	_, err := h.engine.RunMaintenance(ctx, "degauss")
	assert.ErrorIs(t, err, printer.ErrValidation)
}

func TestEngine_ClearFaultIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	before := h.state(t)
	h.clock.Advance(time.Minute)

	_, err := h.engine.ClearFault(ctx, printer.FaultJam)
	require.NoError(t, err)

	after := h.state(t)
	assert.True(t, after.LastUpdated.After(before.LastUpdated))
	after.LastUpdated = before.LastUpdated
	after.Version = before.Version
	assert.Equal(t, before, after)

	_, err = h.engine.ClearFault(ctx, "gremlins")
	assert.ErrorIs(t, err, printer.ErrValidation)
}

func TestEngine_ColdStartWarmsUp(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.ColdStart = true }))

	assert.Equal(t, printer.StatusOffline, h.state(t).Status)

	h.clock.Advance(warmup)
	assert.Equal(t, printer.StatusWarmingUp, h.state(t).Status)

	h.clock.Advance(warmup)
	assert.Equal(t, printer.StatusReady, h.state(t).Status)

	st := h.state(t)
	persisted, err := h.store.Load(context.Background(), "printer-1")
	require.NoError(t, err)
	assert.Equal(t, st.Version, persisted.Version)
	assert.Equal(t, printer.StatusReady, persisted.Status)
}

func TestEngine_PowerCycleClearsFaults(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) {
		s.FaultInjection = true
		s.FaultProbability = 0.5
	}))
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)
	h.random.push(0.99, 0.1)
	h.tick(t, time.Second)
	require.Equal(t, printer.StatusError, h.state(t).Status)

	_, err = h.engine.PowerCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, printer.StatusOffline, h.state(t).Status)

	h.clock.Advance(warmup)
	assert.Equal(t, printer.StatusWarmingUp, h.state(t).Status)
	h.clock.Advance(warmup)

	st := h.state(t)
	assert.Empty(t, st.Errors)
	// the interrupted job resumes
	assert.Equal(t, printer.StatusBusy, st.Status)
}

func TestEngine_StopCancelsWarmUp(t *testing.T) {
	h := newHarness(t, withSettings(func(s *printer.Settings) { s.ColdStart = true }))

	h.sched.Stop()
	h.clock.Advance(2 * warmup)
	assert.Equal(t, printer.StatusOffline, h.state(t).Status)
}

func TestEngine_FactoryReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.SubmitJob(ctx, monoJob(3))
	require.NoError(t, err)
	_, err = h.engine.RunMaintenance(ctx, printer.MaintenanceCleaning)
	require.NoError(t, err)

	_, err = h.engine.FactoryReset(ctx)
	require.NoError(t, err)

	st := h.state(t)
	assert.Empty(t, st.Queue)
	assert.Zero(t, st.Statistics.TotalJobs)
	assert.Zero(t, st.Statistics.MaintenanceCycles)
	assert.Equal(t, 100.0, st.ResourceLevels[printer.ResourceCyan])
	assert.Equal(t, int64(1), st.Version)
	require.Len(t, st.Logs, 1)
	assert.Contains(t, st.Logs[0].Message, "Factory reset")
}

func TestEngine_BoundedLogsAndFaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for range 120 {
		_, err := h.engine.RefillResource(ctx, printer.ResourceCyan)
		require.NoError(t, err)
	}
	st := h.state(t)
	assert.Len(t, st.Logs, 100)
	assert.NoError(t, st.CheckInvariants())
}

func TestEngine_ReadOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.engine.SubmitJob(ctx, monoJob(10))
	require.NoError(t, err)
	h.tick(t, time.Second)
	h.clock.Advance(time.Minute)

	report, err := h.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "printer-1", report.ID)
	assert.Equal(t, printer.StatusBusy, report.Status)
	assert.Equal(t, 1, report.QueueLength)
	assert.Equal(t, int64(61), report.UptimeSeconds)
	require.NotNil(t, report.CurrentJob)

	stats, err := h.engine.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalJobs)

	logs, err := h.engine.Logs(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	summary, err := h.engine.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "printer-1", summary.ID)
	assert.Equal(t, 50, summary.ConsumableCount)

	running, err := h.engine.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, printer.JobRunning, running.Status)

	_, err = h.engine.Job(ctx, "job_missing")
	assert.ErrorIs(t, err, printer.ErrNotFound)

	// copies do not alias engine state
	report.ResourceLevels[printer.ResourceBlack] = 0
	again, err := h.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.ResourceLevels[printer.ResourceBlack])
}

func TestEngine_EmitsEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.engine.SubmitJob(ctx, monoJob(1))
	require.NoError(t, err)
	h.tick(t, time.Second)
	h.tick(t, 10*time.Second)

	assert.Equal(t, []printer.EventType{
		printer.EventJobSubmitted,
		printer.EventStatusChanged,
		printer.EventJobStarted,
		printer.EventStatusChanged,
		printer.EventJobCompleted,
	}, h.events.types())

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	assert.Equal(t, "printer-1", h.events.events[0].PrinterID)
	assert.Equal(t, job.ID, h.events.events[0].JobID)
	assert.Equal(t, printer.StatusReady, h.events.events[1].Previous)
	assert.Equal(t, printer.StatusBusy, h.events.events[1].Status)
}

func TestBackgroundScheduler_DrivesTicks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Start())
	h.clock.WaitForTimers(1)

	_, err := h.engine.SubmitJob(ctx, monoJob(1))
	require.NoError(t, err)
	h.clock.Advance(time.Second)

	assert.Eventually(t, func() bool {
		return h.state(t).Status == printer.StatusBusy
	}, time.Second, 5*time.Millisecond)

	h.engine.Stop()
}

func seededStore(t *testing.T, fn func(*printer.State)) printer.Store {
	t.Helper()
	store := storage.NewMemoryStore(0)
	st := printer.NewDefaultState(printer.DefaultSettings(), epoch)
	fn(st)
	require.NoError(t, store.Save(context.Background(), "printer-1", st))
	return store
}

func hasFault(st *printer.State, kind printer.FaultKind) bool {
	for _, f := range st.Errors {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func (l *eventLog) count(t printer.EventType) int {
	n := 0
	for _, et := range l.types() {
		if et == t {
			n++
		}
	}
	return n
}

// Only loading paper gets an emptied printer printing again.
func TestEngine_EmptyTrayBlocksRecovery(t *testing.T) {
	testCases := []struct {
		name    string
		recover func(t *testing.T, h *harness)
	}{
		{
			name: "clear fault",
			recover: func(t *testing.T, h *harness) {
				msg, err := h.engine.ClearFault(context.Background(), printer.FaultResourceDepleted)
				require.NoError(t, err)
				assert.Contains(t, msg, "load paper")
			},
		},
		{
			name: "power cycle",
			recover: func(t *testing.T, h *harness) {
				_, err := h.engine.PowerCycle(context.Background())
				require.NoError(t, err)
				h.clock.Advance(warmup)
				h.clock.Advance(warmup)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, withSettings(func(s *printer.Settings) { s.InitialConsumables = 1 }))
			ctx := context.Background()

			_, err := h.engine.SubmitJob(ctx, monoJob(10))
			require.NoError(t, err)
			h.tick(t, time.Second)
			h.random.push(0.1)
			h.tick(t, 3*time.Second)
			require.Equal(t, printer.StatusError, h.state(t).Status)

			tc.recover(t, h)
			for range 40 {
				h.tick(t, time.Second)
			}

			st := h.state(t)
			assert.Equal(t, printer.StatusError, st.Status)
			assert.Equal(t, 0, st.ConsumableCount)
			assert.True(t, hasFault(st, printer.FaultResourceDepleted))
			assert.Empty(t, st.CompletedJobs)
			assert.Len(t, st.Queue, 1)

			_, err = h.engine.LoadConsumable(ctx, 10, "")
			require.NoError(t, err)
			h.tick(t, time.Second)

			st = h.state(t)
			assert.Equal(t, printer.StatusReady, st.Status)
			assert.Len(t, st.CompletedJobs, 1)
		})
	}
}

func TestEngine_EmptyTrayStopsQueuedWork(t *testing.T) {
	testCases := []struct {
		name       string
		recorded   bool
		wantRaised int
	}{
		{name: "fault raised once", recorded: false, wantRaised: 1},
		{name: "fault already recorded", recorded: true, wantRaised: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := seededStore(t, func(st *printer.State) {
				st.ConsumableCount = 0
				if tc.recorded {
					st.Errors = append(st.Errors, printer.Fault{
						Kind:      printer.FaultResourceDepleted,
						Message:   "Out of a4 paper",
						Timestamp: epoch,
						Severity:  printer.SeverityCritical,
						Resource:  printer.ConsumableResource,
					})
				}
			})
			h := newHarness(t, withStore(store))

			_, err := h.engine.SubmitJob(context.Background(), monoJob(1))
			require.NoError(t, err)
			h.tick(t, time.Second)
			h.tick(t, time.Second)

			st := h.state(t)
			assert.Equal(t, printer.StatusError, st.Status)
			assert.Equal(t, printer.JobQueued, st.Queue[0].Status)
			assert.Len(t, st.Errors, 1)
			assert.Equal(t, tc.wantRaised, h.events.count(printer.EventFaultRaised))
		})
	}
}

// A restart between the two warm-up steps starts the sequence over
// instead of leaving the printer warming up forever.
func TestEngine_RestartResumesWarmUp(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(t *testing.T) (printer.Store, *clock.FakeClock)
	}{
		{
			name: "persisted offline",
			setup: func(t *testing.T) (printer.Store, *clock.FakeClock) {
				return seededStore(t, func(st *printer.State) { st.Status = printer.StatusOffline }), clock.Fake(epoch)
			},
		},
		{
			name: "persisted warming up",
			setup: func(t *testing.T) (printer.Store, *clock.FakeClock) {
				return seededStore(t, func(st *printer.State) { st.Status = printer.StatusWarmingUp }), clock.Fake(epoch)
			},
		},
		{
			name: "process stopped mid warm-up",
			setup: func(t *testing.T) (printer.Store, *clock.FakeClock) {
				store := storage.NewMemoryStore(0)
				first := newHarness(t, withStore(store), withSettings(func(s *printer.Settings) { s.ColdStart = true }))
				first.clock.Advance(warmup)
				require.Equal(t, printer.StatusWarmingUp, first.state(t).Status)
				first.sched.Stop()
				return store, first.clock
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, clk := tc.setup(t)
			h := newHarness(t, withStore(store), withClock(clk))
			ctx := context.Background()

			assert.Equal(t, printer.StatusOffline, h.state(t).Status)
			_, err := h.engine.SubmitJob(ctx, monoJob(1))
			require.NoError(t, err)

			h.clock.Advance(warmup)
			assert.Equal(t, printer.StatusWarmingUp, h.state(t).Status)
			h.clock.Advance(warmup)
			assert.Equal(t, printer.StatusReady, h.state(t).Status)

			h.tick(t, time.Second)
			assert.Equal(t, printer.StatusBusy, h.state(t).Status)

			persisted, err := store.Load(ctx, "printer-1")
			require.NoError(t, err)
			assert.Equal(t, printer.StatusBusy, persisted.Status)
		})
	}
}

func TestBackgroundScheduler_DropsFiredTimers(t *testing.T) {
	h := newHarness(t)
	sched := h.sched.(*printer.BackgroundScheduler)
	ctx := context.Background()

	for range 3 {
		_, err := h.engine.PowerCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sched.Pending())

		h.clock.Advance(warmup)
		assert.Equal(t, 1, sched.Pending())
		h.clock.Advance(warmup)
		assert.Equal(t, 0, sched.Pending())
		assert.Equal(t, printer.StatusReady, h.state(t).Status)
	}
}
