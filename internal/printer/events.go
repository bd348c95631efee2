package printer

import "time"

type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventJobSubmitted  EventType = "job_submitted"
	EventJobStarted    EventType = "job_started"
	EventJobCompleted  EventType = "job_completed"
	EventJobCancelled  EventType = "job_cancelled"
	EventFaultRaised   EventType = "fault_raised"
	EventFaultCleared  EventType = "fault_cleared"
)

// Event describes one observable change on a printer.
type Event struct {
	PrinterID string    `json:"printer_id"`
	Type      EventType `json:"type"`
	Status    Status    `json:"status,omitempty"`
	Previous  Status    `json:"previous,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Fault     *Fault    `json:"fault,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives engine events. Notify is called with the engine lock
// held and must not block or call back into the engine.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(event Event) { f(event) }

func (e *Engine) emit(events ...Event) {
	if e.notifier == nil {
		return
	}
	for _, ev := range events {
		ev.PrinterID = e.id
		e.notifier.Notify(ev)
	}
}

// withStatusChange prepends a status_changed event when the status moved.
func withStatusChange(previous, current Status, now time.Time, events []Event) []Event {
	if previous == current {
		return events
	}
	ev := Event{Type: EventStatusChanged, Status: current, Previous: previous, Timestamp: now}
	return append([]Event{ev}, events...)
}

func jobEvent(t EventType, job Job, now time.Time) Event {
	return Event{Type: t, JobID: job.ID, Message: job.Spec.DocumentName, Timestamp: now}
}

func faultEvents(faults []Fault) []Event {
	events := make([]Event, 0, len(faults))
	for i := range faults {
		f := faults[i]
		events = append(events, Event{Type: EventFaultRaised, Fault: &f, Message: f.Message, Timestamp: f.Timestamp})
	}
	return events
}
