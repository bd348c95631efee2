package printer

import (
	"fmt"
	"time"
)

const (
	maxFaults = 10
	maxLogs   = 100
)

// NewDefaultState builds the snapshot a printer starts from when nothing
// has been persisted for it. Cold printers start offline.
func NewDefaultState(settings Settings, now time.Time) *State {
	status := StatusReady
	if settings.ColdStart {
		status = StatusOffline
	}

	levels := make(map[ResourceID]float64, len(Resources))
	for _, r := range Resources {
		levels[r] = 100
	}

	return &State{
		Name:               settings.Name,
		Status:             status,
		ResourceLevels:     levels,
		ConsumableCount:    settings.InitialConsumables,
		ConsumableCapacity: settings.ConsumableCapacity,
		ConsumableKind:     settings.ConsumableKind,
		Queue:              []Job{},
		CompletedJobs:      []Job{},
		Errors:             []Fault{},
		Logs:               []LogEntry{},
		Statistics:         newStatistics(),
		LastUpdated:        now,
		StartedAt:          now,
	}
}

func newStatistics() Statistics {
	consumed := make(map[ResourceID]float64, len(Resources))
	for _, r := range Resources {
		consumed[r] = 0
	}
	return Statistics{
		ResourceConsumed:  consumed,
		MaintenanceByKind: map[MaintenanceKind]int{},
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	out := *s
	out.ResourceLevels = make(map[ResourceID]float64, len(s.ResourceLevels))
	for k, v := range s.ResourceLevels {
		out.ResourceLevels[k] = v
	}
	out.Queue = cloneJobs(s.Queue)
	out.CompletedJobs = cloneJobs(s.CompletedJobs)
	out.CurrentJob = cloneJob(s.CurrentJob)
	out.Errors = append([]Fault{}, s.Errors...)
	out.Logs = append([]LogEntry{}, s.Logs...)

	out.Statistics.ResourceConsumed = make(map[ResourceID]float64, len(s.Statistics.ResourceConsumed))
	for k, v := range s.Statistics.ResourceConsumed {
		out.Statistics.ResourceConsumed[k] = v
	}
	out.Statistics.MaintenanceByKind = make(map[MaintenanceKind]int, len(s.Statistics.MaintenanceByKind))
	for k, v := range s.Statistics.MaintenanceByKind {
		out.Statistics.MaintenanceByKind[k] = v
	}
	out.Statistics.LastMaintenance = cloneTime(s.Statistics.LastMaintenance)
	return &out
}

func cloneJobs(jobs []Job) []Job {
	out := make([]Job, len(jobs))
	for i := range jobs {
		out[i] = *cloneJob(&jobs[i])
	}
	return out
}

func cloneJob(j *Job) *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// normalize fills maps and slices a hand-edited or older snapshot may lack.
func (s *State) normalize(settings Settings) {
	if s.ResourceLevels == nil {
		s.ResourceLevels = map[ResourceID]float64{}
	}
	for _, r := range Resources {
		if _, ok := s.ResourceLevels[r]; !ok {
			s.ResourceLevels[r] = 100
		}
	}
	if s.ConsumableCapacity <= 0 {
		s.ConsumableCapacity = settings.ConsumableCapacity
	}
	if s.Queue == nil {
		s.Queue = []Job{}
	}
	if s.CompletedJobs == nil {
		s.CompletedJobs = []Job{}
	}
	if s.Errors == nil {
		s.Errors = []Fault{}
	}
	if s.Logs == nil {
		s.Logs = []LogEntry{}
	}
	if s.Statistics.ResourceConsumed == nil {
		s.Statistics.ResourceConsumed = map[ResourceID]float64{}
	}
	if s.Statistics.MaintenanceByKind == nil {
		s.Statistics.MaintenanceByKind = map[MaintenanceKind]int{}
	}
}

// CheckInvariants reports the first structural violation found, if any.
func (s *State) CheckInvariants() error {
	running := 0
	for i, job := range s.Queue {
		if job.Status == JobRunning {
			running++
			if i != 0 {
				return fmt.Errorf("running job %s is at queue position %d", job.ID, i)
			}
		}
	}
	if running > 1 {
		return fmt.Errorf("%d running jobs", running)
	}

	headRunning := len(s.Queue) > 0 && s.Queue[0].Status == JobRunning
	switch {
	case headRunning && s.CurrentJob == nil:
		return fmt.Errorf("queue head %s is running but current job is empty", s.Queue[0].ID)
	case !headRunning && s.CurrentJob != nil:
		return fmt.Errorf("current job %s is set but queue head is not running", s.CurrentJob.ID)
	case headRunning && s.CurrentJob.ID != s.Queue[0].ID:
		return fmt.Errorf("current job %s does not match queue head %s", s.CurrentJob.ID, s.Queue[0].ID)
	}

	for r, level := range s.ResourceLevels {
		if level < 0 || level > 100 {
			return fmt.Errorf("resource %s level %.2f out of range", r, level)
		}
	}
	if s.ConsumableCount < 0 || s.ConsumableCount > s.ConsumableCapacity {
		return fmt.Errorf("consumable count %d outside [0,%d]", s.ConsumableCount, s.ConsumableCapacity)
	}
	if len(s.Errors) > maxFaults {
		return fmt.Errorf("%d faults exceeds bound %d", len(s.Errors), maxFaults)
	}
	if len(s.Logs) > maxLogs {
		return fmt.Errorf("%d log entries exceeds bound %d", len(s.Logs), maxLogs)
	}
	return nil
}

// syncCurrent mirrors the running queue head into CurrentJob.
func (s *State) syncCurrent() {
	if len(s.Queue) > 0 && s.Queue[0].Status == JobRunning {
		s.CurrentJob = cloneJob(&s.Queue[0])
		return
	}
	s.CurrentJob = nil
}

func (s *State) addLog(now time.Time, level, message string) {
	s.Logs = append(s.Logs, LogEntry{Timestamp: now, Level: level, Message: message})
	if over := len(s.Logs) - maxLogs; over > 0 {
		s.Logs = append([]LogEntry{}, s.Logs[over:]...)
	}
}

func (s *State) addFault(f Fault) {
	s.Errors = append(s.Errors, f)
	if over := len(s.Errors) - maxFaults; over > 0 {
		s.Errors = append([]Fault{}, s.Errors[over:]...)
	}
}

func (s *State) hasFault(kind FaultKind, resource string) bool {
	for _, f := range s.Errors {
		if f.Kind == kind && f.Resource == resource {
			return true
		}
	}
	return false
}

// removeFaults drops faults matching kind (and resource when non-empty)
// and returns how many were removed.
func (s *State) removeFaults(kind FaultKind, resource string) int {
	kept := s.Errors[:0:0]
	removed := 0
	for _, f := range s.Errors {
		if f.Kind == kind && (resource == "" || f.Resource == resource) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	s.Errors = kept
	return removed
}

func (s *State) hasBlockingFaults() bool {
	for _, f := range s.Errors {
		if f.Blocking() {
			return true
		}
	}
	return false
}

// recoverIfClear moves an errored printer back to ready once nothing
// blocking remains.
func (s *State) recoverIfClear() bool {
	if s.Status == StatusError && !s.hasBlockingFaults() {
		s.Status = StatusReady
		return true
	}
	return false
}

func (s *State) findQueued(jobID string) int {
	for i, job := range s.Queue {
		if job.ID == jobID {
			return i
		}
	}
	return -1
}

func (s *State) knowsJobID(jobID string) bool {
	if s.findQueued(jobID) >= 0 {
		return true
	}
	for _, job := range s.CompletedJobs {
		if job.ID == jobID {
			return true
		}
	}
	return false
}

func (s *State) summary(id string) DeviceSummary {
	levels := make(map[ResourceID]float64, len(s.ResourceLevels))
	for k, v := range s.ResourceLevels {
		levels[k] = v
	}
	return DeviceSummary{
		ID:              id,
		Name:            s.Name,
		Status:          s.Status,
		ResourceLevels:  levels,
		ConsumableCount: s.ConsumableCount,
	}
}
