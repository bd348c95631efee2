package websocket

import (
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Printer events, one per printer.EventType
	MessageTypeStatusChanged MessageType = "status_changed"
	MessageTypeJobSubmitted  MessageType = "job_submitted"
	MessageTypeJobStarted    MessageType = "job_started"
	MessageTypeJobCompleted  MessageType = "job_completed"
	MessageTypeJobCancelled  MessageType = "job_cancelled"
	MessageTypeFaultRaised   MessageType = "fault_raised"
	MessageTypeFaultCleared  MessageType = "fault_cleared"

	// Dispatch outcomes from the location print flow
	MessageTypeDispatch MessageType = "dispatch"

	// System lifecycle
	MessageTypeSystemStatus MessageType = "system_status"

	// Client control
	MessageTypeSubscribed MessageType = "subscribed"
	MessageTypeError      MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	PrinterID string      `json:"printer_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// PrinterEventData is the payload of a printer event message
type PrinterEventData struct {
	Status   printer.Status `json:"status"`
	Previous printer.Status `json:"previous_status,omitempty"`
	JobID    string         `json:"job_id,omitempty"`
	Fault    *printer.Fault `json:"fault,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// DispatchData reports where a location print request went
type DispatchData struct {
	LocationID string `json:"location_id"`
	Outcome    string `json:"outcome"`
	JobID      string `json:"job_id,omitempty"`
	Message    string `json:"message"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewPrinterEventMessage keeps the engine's timestamp so clients see
// simulated time.
func NewPrinterEventMessage(event printer.Event) Message {
	return Message{
		Type:      MessageType(event.Type),
		PrinterID: event.PrinterID,
		Timestamp: event.Timestamp,
		Data: PrinterEventData{
			Status:   event.Status,
			Previous: event.Previous,
			JobID:    event.JobID,
			Fault:    event.Fault,
			Message:  event.Message,
		},
	}
}

func NewDispatchMessage(printerID, locationID, outcome, jobID, message string) Message {
	msg := NewMessage(MessageTypeDispatch, DispatchData{
		LocationID: locationID,
		Outcome:    outcome,
		JobID:      jobID,
		Message:    message,
	})
	msg.PrinterID = printerID
	return msg
}
