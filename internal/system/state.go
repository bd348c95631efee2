package system

import "fmt"

type SystemState int

const (
	StateInitializing SystemState = iota
	StateRunning
	StateUpdating
	StateStopping
	StateStopped
	StateError
)

func (s SystemState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateUpdating:
		return "UPDATING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (s SystemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var validTransitions = map[SystemState][]SystemState{
	StateInitializing: {StateRunning, StateError, StateStopping},
	StateRunning:      {StateUpdating, StateStopping, StateError},
	StateUpdating:     {StateRunning, StateError},
	StateStopping:     {StateStopped, StateError},
	StateStopped:      {StateInitializing},
	StateError:        {StateInitializing, StateStopping, StateStopped},
}

func ValidateTransition(from, to SystemState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
