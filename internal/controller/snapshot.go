package controller

import "time"

// Mode is the controller state
type Mode string

const (
	ModeIdle        Mode = "idle"
	ModeManualReady Mode = "manual_ready"
	ModeAutoRunning Mode = "auto_running"
)

// AutoProgress reports how far the current auto run is
type AutoProgress struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Snapshot is a point-in-time copy of the controller state
type Snapshot struct {
	Count             int          `json:"count"`
	Mode              Mode         `json:"mode"`
	Busy              bool         `json:"busy"`
	DevicePresent     bool         `json:"device_present"`
	PresenceKnown     bool         `json:"presence_known"`
	PresenceCheckedAt *time.Time   `json:"presence_checked_at,omitempty"`
	AutoProgress      AutoProgress `json:"auto_progress"`
	AutoInterval      float64      `json:"auto_interval,omitempty"` // seconds, while auto running
	LastError         ErrorKind    `json:"last_error,omitempty"`
	LastErrorMessage  string       `json:"last_error_message,omitempty"`
	LastOrderNumber   int64        `json:"last_order_number"`
	LastPrintAt       *time.Time   `json:"last_print_at,omitempty"`
}

// Presence renders the device status as present, absent or unknown
func (s Snapshot) Presence() string {
	switch {
	case !s.PresenceKnown:
		return "unknown"
	case s.DevicePresent:
		return "present"
	default:
		return "absent"
	}
}

// EventType classifies a notification
type EventType string

const (
	EventState       EventType = "state"
	EventPresence    EventType = "presence"
	EventPrinted     EventType = "printed"
	EventPrintFailed EventType = "print_failed"
)

// Event is pushed to subscribers whenever the snapshot changes
type Event struct {
	Type        EventType `json:"type"`
	Data        Snapshot  `json:"data"`
	OrderNumber int64     `json:"order_number,omitempty"`
	Error       ErrorKind `json:"error,omitempty"`
	Message     string    `json:"message,omitempty"`
}
