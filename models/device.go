package models

import (
	"time"
)

// Status is the classified safety state of a device reading.
type Status string

const (
	StatusSafe  Status = "Safe"
	StatusAlert Status = "Alert"
)

// ButtonEvent is the internal tag derived from the physical button state.
type ButtonEvent string

const (
	ButtonIdle      ButtonEvent = "STATE_IDLE"
	ButtonAlert     ButtonEvent = "STATE_ALERT"
	ButtonSprinkler ButtonEvent = "STATE_SPRINKLER"
)

// Button states as reported by device firmware under status.state.
const (
	ButtonStateIdle      = "idle"
	ButtonStateAlert     = "alert"
	ButtonStateSprinkler = "sprinkler"
)

// Reading is a device snapshot normalized from the raw document schema.
// Every field has a defined default; optional sensor values are nil when
// neither the flat nor the nested schema carries them.
type Reading struct {
	DeviceID      string      `json:"deviceId"`
	Timestamp     time.Time   `json:"timestamp"`
	Temperature   *float64    `json:"temperature,omitempty"`
	Humidity      *float64    `json:"humidity,omitempty"`
	SmokeAnalog   float64     `json:"smokeAnalog"`
	SmokeDetected bool        `json:"smokeDetected"`
	GasStatus     string      `json:"gasStatus"`
	SensorError   bool        `json:"sensorError"`
	Message       string      `json:"message"`
	ButtonState   string      `json:"buttonState"`
	ButtonEvent   ButtonEvent `json:"buttonEvent"`
	LastType      string      `json:"lastType,omitempty"`
}

// OnlineState is the tracker-owned per-device online record.
type OnlineState struct {
	IsOnline    bool  `json:"isOnline"`
	LastChecked int64 `json:"lastChecked"`
}
