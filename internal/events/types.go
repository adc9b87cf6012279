// Package events defines event types and payloads for the netcheck event system.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Check events
	EventCheckStarted   EventType = "check_started"
	EventCheckCompleted EventType = "check_completed"

	// Monitor events
	EventMonitorTick EventType = "monitor_tick"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// CheckKind identifies which check produced a result.
type CheckKind int

const (
	CheckServer CheckKind = iota
	CheckConnection
	CheckJoin
	CheckP2P
)

var checkKindStrings = map[CheckKind]string{
	CheckServer:     "server",
	CheckConnection: "connection",
	CheckJoin:       "join",
	CheckP2P:        "p2p",
}

// String returns the string representation of CheckKind.
func (k CheckKind) String() string {
	if str, ok := checkKindStrings[k]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes CheckKind as a JSON string (e.g. "p2p").
func (k CheckKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// ParseCheckKind parses the lowercase name of a check kind.
func ParseCheckKind(name string) (CheckKind, bool) {
	for k, s := range checkKindStrings {
		if s == name {
			return k, true
		}
	}
	return 0, false
}

// Event represents a single event in the system.
type Event struct {
	ID      string
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// NewEvent stamps a new event with a random ID and the current time.
func NewEvent(typ EventType, source string, payload interface{}) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Source:  source,
		Time:    time.Now(),
		Payload: payload,
	}
}

// CheckStartedPayload is emitted before a check contacts its target.
type CheckStartedPayload struct {
	Kind CheckKind `json:"kind"`
	Host string    `json:"host"`
	Port int       `json:"port"`
}

// CheckCompletedPayload carries the outcome of a finished check.
type CheckCompletedPayload struct {
	Kind     CheckKind              `json:"kind"`
	Host     string                 `json:"host"`
	Port     int                    `json:"port"`
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Duration time.Duration          `json:"duration_ns"`
}

// MonitorTickPayload is emitted once per monitor round.
type MonitorTickPayload struct {
	Targets int `json:"targets"`
	Failed  int `json:"failed"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
