package printer

import (
	"fmt"
	"math"
	"time"
)

// Settings configures a single printer engine.
type Settings struct {
	Name                   string
	ColdStart              bool
	TickInterval           time.Duration
	PagesPerMinute         int
	ConsumableCapacity     int
	InitialConsumables     int
	ConsumableKind         ConsumableKind
	LowResourceThreshold   float64
	ConsumptionProbability float64
	FaultProbability       float64
	FaultInjection         bool
}

func DefaultSettings() Settings {
	return Settings{
		Name:                   "Printer",
		TickInterval:           time.Second,
		PagesPerMinute:         20,
		ConsumableCapacity:     250,
		InitialConsumables:     250,
		ConsumableKind:         ConsumableA4,
		LowResourceThreshold:   15,
		ConsumptionProbability: 0.3,
		FaultProbability:       0.005,
	}
}

// basePerPage is the percentage of a resource one normal-quality page uses.
const basePerPage = 0.1

const (
	cleaningCost  = 2.0
	checkPageCost = 0.5
)

func qualityMultiplier(q Quality) float64 {
	switch q {
	case QualityDraft:
		return 0.5
	case QualityHigh:
		return 1.5
	case QualityPhoto:
		return 2.0
	default:
		return 1.0
	}
}

func validQuality(q Quality) bool {
	switch q {
	case QualityDraft, QualityNormal, QualityHigh, QualityPhoto:
		return true
	}
	return false
}

// estimateDuration derives how long a job takes from throughput and quality.
func (s Settings) estimateDuration(spec WorkSpec) int {
	ppm := s.PagesPerMinute
	if ppm <= 0 {
		ppm = 20
	}
	seconds := float64(spec.Pages) * 60 / float64(ppm) * qualityMultiplier(spec.Quality)
	return max(1, int(math.Ceil(seconds)))
}

// consumptionPerEvent is how much of each required resource one
// consumption event uses. Dividing by the expected number of events over
// the job keeps the total near pages*rate whatever the job length.
func (s Settings) consumptionPerEvent(job Job) float64 {
	interval := s.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticks := float64(job.EstimatedDurationSeconds) / interval.Seconds()
	expectedEvents := math.Max(1, ticks*s.ConsumptionProbability)
	rate := basePerPage * qualityMultiplier(job.Spec.Quality)
	return rate * float64(job.Spec.Pages) / expectedEvents
}

// consume applies one consumption event for job and returns the faults
// raised by it.
func (s Settings) consume(st *State, job Job, now time.Time) []Fault {
	amount := s.consumptionPerEvent(job)
	for _, r := range job.Spec.RequiredResources() {
		drawResource(st, r, amount)
	}

	var raised []Fault
	if st.ConsumableCount > 0 {
		st.ConsumableCount--
		st.Statistics.ConsumablesUsed++
		if st.ConsumableCount == 0 {
			raised = append(raised, depleteConsumable(st, now)...)
		}
	}
	return append(raised, s.checkLowResources(st, now)...)
}

func drawResource(st *State, r ResourceID, amount float64) {
	before := st.ResourceLevels[r]
	after := math.Max(0, before-amount)
	st.ResourceLevels[r] = after
	st.Statistics.ResourceConsumed[r] += before - after
}

// depleteConsumable puts the printer in error for an empty tray. The
// fault is returned only when it was not already recorded.
func depleteConsumable(st *State, now time.Time) []Fault {
	st.Status = StatusError
	if st.hasFault(FaultResourceDepleted, ConsumableResource) {
		return nil
	}
	f := Fault{
		Kind:      FaultResourceDepleted,
		Message:   fmt.Sprintf("Out of %s paper", st.ConsumableKind),
		Timestamp: now,
		Severity:  SeverityCritical,
		Resource:  ConsumableResource,
	}
	st.addFault(f)
	st.addLog(now, "error", f.Message)
	return []Fault{f}
}

// checkLowResources raises one resource_low warning per resource under
// the threshold, skipping resources that already carry one.
func (s Settings) checkLowResources(st *State, now time.Time) []Fault {
	var raised []Fault
	for _, r := range Resources {
		level := st.ResourceLevels[r]
		if level >= s.LowResourceThreshold || st.hasFault(FaultResourceLow, string(r)) {
			continue
		}
		f := Fault{
			Kind:      FaultResourceLow,
			Message:   fmt.Sprintf("%s level low (%.1f%%)", r, level),
			Timestamp: now,
			Severity:  SeverityWarning,
			Resource:  string(r),
		}
		st.addFault(f)
		st.addLog(now, "warning", f.Message)
		raised = append(raised, f)
	}
	return raised
}
