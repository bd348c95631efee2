package printer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidateWorkSpec checks spec as SubmitJob would, after defaults are
// applied. Empty quality and paper size are accepted.
func ValidateWorkSpec(spec WorkSpec) error {
	if strings.TrimSpace(spec.DocumentName) == "" {
		return fmt.Errorf("%w: document name is required", ErrValidation)
	}
	if spec.Pages <= 0 {
		return fmt.Errorf("%w: pages must be positive (got %d)", ErrValidation, spec.Pages)
	}
	if spec.Quality != "" && !validQuality(spec.Quality) {
		return fmt.Errorf("%w: unknown quality %q", ErrValidation, spec.Quality)
	}
	if spec.PaperSize != "" && !spec.PaperSize.Valid() {
		return fmt.Errorf("%w: unknown paper size %q", ErrValidation, spec.PaperSize)
	}
	return nil
}

// SubmitJob validates spec and appends a new job to the queue. The queue
// is unbounded and jobs are accepted in any status.
func (e *Engine) SubmitJob(ctx context.Context, spec WorkSpec) (Job, error) {
	if err := ValidateWorkSpec(spec); err != nil {
		return Job{}, err
	}
	spec.DocumentName = strings.TrimSpace(spec.DocumentName)
	if spec.Quality == "" {
		spec.Quality = QualityNormal
	}
	if spec.PaperSize == "" {
		spec.PaperSize = e.settings.ConsumableKind
	}

	var job Job
	_, err := e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		id := newJobID(now)
		for st.knowsJobID(id) {
			id = newJobID(now)
		}
		job = Job{
			ID:                       id,
			Spec:                     spec,
			Status:                   JobQueued,
			SubmittedAt:              now,
			EstimatedDurationSeconds: e.settings.estimateDuration(spec),
		}
		st.Queue = append(st.Queue, job)
		st.Statistics.TotalJobs++
		e.logf(st, now, "info", "Queued job %s: %s (%d pages)", job.ID, spec.DocumentName, spec.Pages)
		return "", []Event{jobEvent(EventJobSubmitted, job, now)}, nil
	})
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

func newJobID(now time.Time) string {
	return fmt.Sprintf("job_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// CancelJob removes a queued or running job. Cancelling the running job
// frees the printer immediately.
func (e *Engine) CancelJob(ctx context.Context, jobID string) (string, error) {
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		i := st.findQueued(jobID)
		if i < 0 {
			return "", nil, fmt.Errorf("%w: no queued or running job %s", ErrNotFound, jobID)
		}

		job := st.Queue[i]
		wasRunning := job.Status == JobRunning
		job.Status = JobCancelled
		st.Queue = append(st.Queue[:i:i], st.Queue[i+1:]...)
		st.Statistics.FailedJobs++

		if wasRunning {
			st.CurrentJob = nil
			if st.Status == StatusBusy || st.Status == StatusPaused {
				st.Status = StatusReady
			}
		}
		st.syncCurrent()
		e.logf(st, now, "info", "Cancelled job %s", jobID)
		return fmt.Sprintf("Job %s cancelled", jobID), []Event{jobEvent(EventJobCancelled, job, now)}, nil
	})
}

func (e *Engine) Pause(ctx context.Context) (string, error) {
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		if st.Status != StatusBusy {
			return "", nil, fmt.Errorf("%w: cannot pause: printer must be busy (current: %s)", ErrInvalidState, st.Status)
		}
		st.Status = StatusPaused
		e.logf(st, now, "info", "Printer paused")
		return "Printer paused", nil, nil
	})
}

func (e *Engine) Resume(ctx context.Context) (string, error) {
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		if st.Status != StatusPaused {
			return "", nil, fmt.Errorf("%w: cannot resume: printer must be paused (current: %s)", ErrInvalidState, st.Status)
		}
		st.Status = StatusReady
		if st.CurrentJob != nil {
			st.Status = StatusBusy
		}
		e.logf(st, now, "info", "Printer resumed")
		return "Printer resumed", nil, nil
	})
}

// RefillResource sets the named resource to exactly 100%.
func (e *Engine) RefillResource(ctx context.Context, id ResourceID) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("%w: unknown resource %q", ErrValidation, id)
	}
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		st.ResourceLevels[id] = 100
		var events []Event
		if st.removeFaults(FaultResourceLow, string(id)) > 0 {
			events = append(events, Event{Type: EventFaultCleared, Message: string(FaultResourceLow), Timestamp: now})
		}
		e.logf(st, now, "info", "Refilled %s", id)
		return fmt.Sprintf("%s refilled to 100%%", id), events, nil
	})
}

// LoadConsumable adds count sheets, clamped to capacity. A kind other than
// the loaded one swaps the tray contents.
func (e *Engine) LoadConsumable(ctx context.Context, count int, kind ConsumableKind) (string, error) {
	if count <= 0 {
		return "", fmt.Errorf("%w: count must be positive (got %d)", ErrValidation, count)
	}
	if kind != "" && !kind.Valid() {
		return "", fmt.Errorf("%w: unknown paper kind %q", ErrValidation, kind)
	}
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		if kind != "" && kind != st.ConsumableKind {
			st.ConsumableKind = kind
			st.ConsumableCount = 0
		}
		st.ConsumableCount = min(st.ConsumableCapacity, st.ConsumableCount+count)

		var events []Event
		if st.removeFaults(FaultResourceDepleted, ConsumableResource) > 0 {
			events = append(events, Event{Type: EventFaultCleared, Message: string(FaultResourceDepleted), Timestamp: now})
		}
		st.recoverIfClear()
		e.logf(st, now, "info", "Loaded paper: %d/%d %s", st.ConsumableCount, st.ConsumableCapacity, st.ConsumableKind)
		return fmt.Sprintf("Paper loaded: %d/%d sheets", st.ConsumableCount, st.ConsumableCapacity), events, nil
	})
}

// RunMaintenance performs a maintenance cycle. It always succeeds for a
// known kind; the resource cost is reported through faults.
func (e *Engine) RunMaintenance(ctx context.Context, kind MaintenanceKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown maintenance kind %q", ErrValidation, kind)
	}
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		var raised []Fault
		switch kind {
		case MaintenanceCleaning:
			for _, r := range Resources {
				drawResource(st, r, cleaningCost)
			}
		case MaintenanceAlignment, MaintenanceNozzleCheck:
			for _, r := range Resources {
				drawResource(st, r, checkPageCost)
			}
			if st.ConsumableCount > 0 {
				st.ConsumableCount--
				st.Statistics.ConsumablesUsed++
				if st.ConsumableCount == 0 {
					raised = append(raised, depleteConsumable(st, now)...)
				}
			}
		}

		at := now
		st.Statistics.MaintenanceCycles++
		st.Statistics.MaintenanceByKind[kind]++
		st.Statistics.LastMaintenance = &at
		raised = append(raised, e.settings.checkLowResources(st, now)...)
		e.logf(st, now, "info", "Ran %s", kind)
		return fmt.Sprintf("Maintenance %s completed", kind), faultEvents(raised), nil
	})
}

// ClearFault removes every fault of kind. Clearing a kind that is not
// present only touches the timestamp. The empty-tray fault stays until
// paper is loaded.
func (e *Engine) ClearFault(ctx context.Context, kind FaultKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown fault kind %q", ErrValidation, kind)
	}
	return e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		if kind == FaultResourceDepleted && st.ConsumableCount < 1 && st.hasFault(kind, ConsumableResource) {
			return "Paper tray is empty: load paper to clear it", nil, nil
		}
		removed := st.removeFaults(kind, "")
		if removed == 0 {
			return fmt.Sprintf("No %s faults to clear", kind), nil, nil
		}
		st.recoverIfClear()
		e.logf(st, now, "info", "Cleared %d %s fault(s)", removed, kind)
		ev := Event{Type: EventFaultCleared, Message: string(kind), Timestamp: now}
		return fmt.Sprintf("Cleared %d %s fault(s)", removed, kind), []Event{ev}, nil
	})
}

// PowerCycle restarts the printer. Background engines go through the
// warm-up sequence; per-request engines come back ready at once.
func (e *Engine) PowerCycle(ctx context.Context) (string, error) {
	warm := !e.perRequest()
	msg, err := e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		if !warm {
			st.Errors = []Fault{}
			st.Status = StatusReady
			if st.CurrentJob != nil {
				st.Status = StatusBusy
			}
			e.logf(st, now, "info", "Power cycled")
			if st.ConsumableCount < 1 {
				return "Printer power cycled, paper tray is empty", faultEvents(depleteConsumable(st, now)), nil
			}
			return "Printer power cycled and ready", nil, nil
		}
		st.Status = StatusOffline
		e.logf(st, now, "info", "Powering off")
		return "Printer power cycling", nil, nil
	})
	if err != nil {
		return "", err
	}
	if warm {
		e.scheduler.WarmUp(e, true)
	}
	return msg, nil
}

// FactoryReset wipes the persisted snapshot and starts over from defaults.
func (e *Engine) FactoryReset(ctx context.Context) (string, error) {
	e.mu.Lock()
	if err := e.store.Clear(ctx, e.key); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: clear %s: %v", ErrStorageUnavailable, e.key, err)
	}

	now := e.clock.Now()
	previous := StatusOffline
	if e.state != nil {
		previous = e.state.Status
	}
	st := NewDefaultState(e.settings, now)
	e.logf(st, now, "warning", "Factory reset performed")
	if err := e.saveLocked(ctx, st); err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.state = st
	e.emit(withStatusChange(previous, st.Status, now, nil)...)
	offline := st.Status == StatusOffline
	e.mu.Unlock()

	if offline {
		e.scheduler.WarmUp(e, false)
	}
	return "Printer reset to factory defaults", nil
}

// transition moves the printer from one of from to next. It is the step
// the warm-up timers run and does nothing when the status moved on.
func (e *Engine) transition(ctx context.Context, from []Status, next Status, clearFaults bool) bool {
	applied := false
	_, err := e.mutate(ctx, func(st *State, now time.Time) (string, []Event, error) {
		for _, s := range from {
			if st.Status == s {
				applied = true
			}
		}
		if !applied {
			return "", nil, fmt.Errorf("%w: cannot move to %s (current: %s)", ErrInvalidState, next, st.Status)
		}
		st.Status = next
		var events []Event
		if next == StatusReady {
			if clearFaults {
				st.Errors = []Fault{}
			}
			if st.CurrentJob != nil {
				st.Status = StatusBusy
			}
			if st.ConsumableCount < 1 {
				events = faultEvents(depleteConsumable(st, now))
			}
		}
		e.logf(st, now, "info", "Status %s", st.Status)
		return "", events, nil
	})
	return applied && err == nil
}
