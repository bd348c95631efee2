package printer

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

var injectableFaults = []FaultKind{FaultJam, FaultHardwareError}

// Tick advances the head of the queue by one step. Storage failures are
// logged; the in-memory state stays authoritative until the next save.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return
	}
	if e.perRequest() {
		// refresh already performs the catch-up step
		if err := e.refreshLocked(ctx); err != nil {
			e.logger.Error("Tick reload failed", zap.Error(err))
		}
		return
	}

	next := e.state.Clone()
	now := e.clock.Now()
	changed, events := e.advance(next, now)
	if !changed {
		return
	}
	events = withStatusChange(e.state.Status, next.Status, now, events)

	if err := e.saveLocked(ctx, next); err != nil {
		e.logger.Error("Failed to persist tick", zap.Error(err))
	}
	e.state = next
	e.emit(events...)
}

// advance applies one processing step to st and reports whether anything
// changed.
func (e *Engine) advance(st *State, now time.Time) (bool, []Event) {
	if (st.Status != StatusReady && st.Status != StatusBusy) || len(st.Queue) == 0 {
		return false, nil
	}

	// nothing starts or progresses on an empty tray
	if st.ConsumableCount < 1 {
		raised := depleteConsumable(st, now)
		st.syncCurrent()
		return true, faultEvents(raised)
	}

	head := &st.Queue[0]
	switch head.Status {
	case JobQueued:
		started := now
		head.Status = JobRunning
		head.StartedAt = &started
		head.Progress = 0
		st.Status = StatusBusy
		st.syncCurrent()
		e.logf(st, now, "info", "Started job %s (%s)", head.ID, head.Spec.DocumentName)
		return true, []Event{jobEvent(EventJobStarted, *head, now)}

	case JobRunning:
		return e.advanceRunning(st, now)
	}
	return false, nil
}

func (e *Engine) advanceRunning(st *State, now time.Time) (bool, []Event) {
	head := &st.Queue[0]
	var events []Event

	if st.Status == StatusReady {
		st.Status = StatusBusy
	}

	steps := e.catchUpSteps(st, *head, now)
	if head.StartedAt == nil {
		started := now
		head.StartedAt = &started
	}
	elapsed := now.Sub(*head.StartedAt).Seconds()
	duration := float64(max(1, head.EstimatedDurationSeconds))
	head.Progress = math.Min(100, math.Max(0, elapsed/duration*100))

	for range steps {
		if e.random.Float64() < e.settings.ConsumptionProbability {
			events = append(events, faultEvents(e.settings.consume(st, *head, now))...)
			if st.Status == StatusError {
				st.syncCurrent()
				return true, events
			}
		}

		if e.settings.FaultInjection && e.random.Float64() < e.settings.FaultProbability {
			kind := injectableFaults[e.random.IntN(len(injectableFaults))]
			f := Fault{
				Kind:      kind,
				Message:   injectedFaultMessage(kind),
				Timestamp: now,
				Severity:  SeverityError,
			}
			st.addFault(f)
			st.Status = StatusError
			st.syncCurrent()
			e.logf(st, now, "error", "%s during job %s", f.Message, head.ID)
			return true, append(events, faultEvents([]Fault{f})...)
		}
	}

	if head.Progress < 100 {
		st.syncCurrent()
		return true, events
	}

	done := *cloneJob(head)
	completed := now
	done.Status = JobCompleted
	done.Progress = 100
	done.CompletedAt = &completed

	st.Queue = append([]Job{}, st.Queue[1:]...)
	st.CompletedJobs = append(st.CompletedJobs, done)
	st.CurrentJob = nil
	st.Status = StatusReady
	st.Statistics.SuccessfulJobs++
	st.Statistics.TotalPages += done.Spec.Pages
	e.logf(st, now, "info", "Completed job %s (%d pages)", done.ID, done.Spec.Pages)
	return true, append(events, jobEvent(EventJobCompleted, done, now))
}

// catchUpSteps is how many tick intervals of job elapsed since st was last
// saved, bounded by the job's duration. Background engines take one step
// per tick.
func (e *Engine) catchUpSteps(st *State, job Job, now time.Time) int {
	if !e.perRequest() || job.StartedAt == nil {
		return 1
	}
	interval := e.settings.TickInterval
	if interval <= 0 {
		interval = time.Second
	}

	from := st.LastUpdated
	if from.Before(*job.StartedAt) {
		from = *job.StartedAt
	}
	until := job.StartedAt.Add(time.Duration(job.EstimatedDurationSeconds) * time.Second)
	if now.Before(until) {
		until = now
	}
	return max(1, int(until.Sub(from)/interval))
}

func injectedFaultMessage(kind FaultKind) string {
	switch kind {
	case FaultJam:
		return "Paper jam"
	case FaultHardwareError:
		return "Print head hardware error"
	}
	return fmt.Sprintf("Unexpected %s fault", kind)
}
