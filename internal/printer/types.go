package printer

import "time"

type Status string

const (
	StatusReady     Status = "ready"
	StatusBusy      Status = "busy"
	StatusWarmingUp Status = "warming_up"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusOffline   Status = "offline"
)

type ResourceID string

const (
	ResourceCyan    ResourceID = "cyan"
	ResourceMagenta ResourceID = "magenta"
	ResourceYellow  ResourceID = "yellow"
	ResourceBlack   ResourceID = "black"
)

// Resources lists every ink-like resource in canonical order.
var Resources = []ResourceID{ResourceCyan, ResourceMagenta, ResourceYellow, ResourceBlack}

// ChromaticResources are consumed only by color work.
var ChromaticResources = []ResourceID{ResourceCyan, ResourceMagenta, ResourceYellow}

func (r ResourceID) Valid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

type ConsumableKind string

const (
	ConsumableLetter ConsumableKind = "letter"
	ConsumableA4     ConsumableKind = "a4"
	ConsumableLegal  ConsumableKind = "legal"
	ConsumablePhoto  ConsumableKind = "photo"
)

func (k ConsumableKind) Valid() bool {
	switch k {
	case ConsumableLetter, ConsumableA4, ConsumableLegal, ConsumablePhoto:
		return true
	}
	return false
}

type Quality string

const (
	QualityDraft  Quality = "draft"
	QualityNormal Quality = "normal"
	QualityHigh   Quality = "high"
	QualityPhoto  Quality = "photo"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

type FaultKind string

const (
	FaultJam              FaultKind = "jam"
	FaultResourceDepleted FaultKind = "resource_depleted"
	FaultResourceLow      FaultKind = "resource_low"
	FaultHardwareError    FaultKind = "hardware_error"
	FaultGeneral          FaultKind = "general"
)

func (k FaultKind) Valid() bool {
	switch k {
	case FaultJam, FaultResourceDepleted, FaultResourceLow, FaultHardwareError, FaultGeneral:
		return true
	}
	return false
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type MaintenanceKind string

const (
	MaintenanceCleaning    MaintenanceKind = "cleaning"
	MaintenanceAlignment   MaintenanceKind = "alignment"
	MaintenanceNozzleCheck MaintenanceKind = "nozzle_check"
)

func (k MaintenanceKind) Valid() bool {
	switch k {
	case MaintenanceCleaning, MaintenanceAlignment, MaintenanceNozzleCheck:
		return true
	}
	return false
}

// ConsumableResource tags faults raised for the sheet supply rather than an ink.
const ConsumableResource = "paper"

// WorkSpec describes what a job prints.
type WorkSpec struct {
	DocumentName string         `json:"document_name"`
	Pages        int            `json:"pages"`
	Color        bool           `json:"color"`
	Quality      Quality        `json:"quality"`
	PaperSize    ConsumableKind `json:"paper_size"`
}

// RequiredResources returns the resources a job with this spec draws from.
func (w WorkSpec) RequiredResources() []ResourceID {
	if w.Color {
		return Resources
	}
	return []ResourceID{ResourceBlack}
}

type Job struct {
	ID                       string     `json:"id"`
	Spec                     WorkSpec   `json:"spec"`
	Status                   JobStatus  `json:"status"`
	Progress                 float64    `json:"progress"`
	SubmittedAt              time.Time  `json:"submitted_at"`
	StartedAt                *time.Time `json:"started_at,omitempty"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`
	EstimatedDurationSeconds int        `json:"estimated_duration_seconds"`
}

type Fault struct {
	Kind      FaultKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	// Resource names the ink or "paper" a resource fault refers to.
	Resource string `json:"resource,omitempty"`
}

// Blocking reports whether the fault keeps the printer out of ready.
func (f Fault) Blocking() bool {
	return f.Severity == SeverityError || f.Severity == SeverityCritical
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type Statistics struct {
	TotalJobs         int                     `json:"total_jobs"`
	SuccessfulJobs    int                     `json:"successful_jobs"`
	FailedJobs        int                     `json:"failed_jobs"`
	TotalPages        int                     `json:"total_pages"`
	ConsumablesUsed   int                     `json:"consumables_used"`
	ResourceConsumed  map[ResourceID]float64  `json:"resource_consumed"`
	MaintenanceCycles int                     `json:"maintenance_cycles"`
	MaintenanceByKind map[MaintenanceKind]int `json:"maintenance_by_kind"`
	LastMaintenance   *time.Time              `json:"last_maintenance,omitempty"`
}

// State is the persisted snapshot of one printer.
type State struct {
	Name               string                 `json:"name"`
	Status             Status                 `json:"status"`
	ResourceLevels     map[ResourceID]float64 `json:"resource_levels"`
	ConsumableCount    int                    `json:"consumable_count"`
	ConsumableCapacity int                    `json:"consumable_capacity"`
	ConsumableKind     ConsumableKind         `json:"consumable_kind"`
	Queue              []Job                  `json:"queue"`
	CurrentJob         *Job                   `json:"current_job"`
	CompletedJobs      []Job                  `json:"completed_jobs"`
	Errors             []Fault                `json:"errors"`
	Logs               []LogEntry             `json:"logs"`
	Statistics         Statistics             `json:"statistics"`
	LastUpdated        time.Time              `json:"last_updated"`
	StartedAt          time.Time              `json:"started_at"`
	Version            int64                  `json:"version"`
}

// DeviceSummary is the read-only view the fleet selector works from.
type DeviceSummary struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Status          Status                 `json:"status"`
	ResourceLevels  map[ResourceID]float64 `json:"resource_levels"`
	ConsumableCount int                    `json:"consumable_count"`
}

// StatusReport is returned by Engine.Status.
type StatusReport struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Status             Status                 `json:"status"`
	ResourceLevels     map[ResourceID]float64 `json:"resource_levels"`
	ConsumableCount    int                    `json:"consumable_count"`
	ConsumableCapacity int                    `json:"consumable_capacity"`
	ConsumableKind     ConsumableKind         `json:"consumable_kind"`
	CurrentJob         *Job                   `json:"current_job,omitempty"`
	QueueLength        int                    `json:"queue_length"`
	Errors             []Fault                `json:"errors"`
	UptimeSeconds      int64                  `json:"uptime_seconds"`
	LastUpdated        time.Time              `json:"last_updated"`
	Version            int64                  `json:"version"`
}
