package models

import (
	"time"
)

// AlertHistoryEntry is one alert card in a device's capped status history.
// Timestamp is epoch milliseconds, matching the device document schema.
type AlertHistoryEntry struct {
	ID          string   `json:"id,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	DeviceID    string   `json:"deviceId"`
	Message     string   `json:"message"`
	GasStatus   string   `json:"gasStatus"`
	SmokeLevel  float64  `json:"smokeLevel"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Type        string   `json:"type"`
}

// Notification types.
const (
	NotificationTypeAlert   = "alert"
	NotificationTypeOffline = "offline"
)

// Notification is one per-user notification document. Only Read may be
// mutated after creation.
type Notification struct {
	ID          string    `json:"id,omitempty" firestore:"-"`
	UserID      string    `json:"userId" firestore:"userId"`
	DeviceID    string    `json:"deviceId" firestore:"deviceId"`
	DeviceName  string    `json:"deviceName" firestore:"deviceName"`
	Type        string    `json:"type" firestore:"type"`
	Title       string    `json:"title" firestore:"title"`
	Message     string    `json:"message" firestore:"message"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	Read        bool      `json:"read" firestore:"read"`
	GasStatus   string    `json:"gasStatus,omitempty" firestore:"gasStatus,omitempty"`
	SmokeLevel  float64   `json:"smokeLevel,omitempty" firestore:"smokeLevel,omitempty"`
	Temperature *float64  `json:"temperature,omitempty" firestore:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty" firestore:"humidity,omitempty"`
}

// Registration links a device to the user who added it.
type Registration struct {
	DeviceID string `json:"deviceId" firestore:"deviceId"`
	AddedBy  string `json:"addedBy" firestore:"addedBy"`
	Name     string `json:"name" firestore:"name"`
}
