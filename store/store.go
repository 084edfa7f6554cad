// Package store defines the document-store boundary the monitoring core
// runs against. All coordination state lives behind these interfaces; the
// production implementation is backed by Firebase (services.FirebaseStore)
// and tests use the in-memory one.
package store

import (
	"context"

	"firewatch/models"
)

// DeviceStore is the raw device tree plus the per-device alert history.
// Grouped operations (RemoveHistory, UpdateOnline) are issued as a single
// atomic multi-path write by implementations.
type DeviceStore interface {
	// Device returns the raw document for one device, nil when absent.
	Device(ctx context.Context, deviceID string) (map[string]interface{}, error)
	// Devices returns the raw documents of every known device.
	Devices(ctx context.Context) (map[string]map[string]interface{}, error)
	// UpdateDevice merges fields into the device's root document.
	UpdateDevice(ctx context.Context, deviceID string, fields map[string]interface{}) error
	// UpdateStatus merges fields into the device's status child node.
	UpdateStatus(ctx context.Context, deviceID string, fields map[string]interface{}) error

	AppendHistory(ctx context.Context, deviceID string, entry models.AlertHistoryEntry) (string, error)
	History(ctx context.Context, deviceID string) ([]models.AlertHistoryEntry, error)
	RemoveHistory(ctx context.Context, deviceID string, ids []string) error

	// UpdateOnline writes online-state records for several devices in one
	// grouped operation.
	UpdateOnline(ctx context.Context, updates map[string]models.OnlineState) error
}

// RegistrationStore resolves which users subscribed to a device.
type RegistrationStore interface {
	ListByDevice(ctx context.Context, deviceID string) ([]models.Registration, error)
}

// NotificationStore persists per-user notifications. CreateAll is
// all-or-nothing; creating a notification whose ID already exists is a
// no-op overwrite, which makes fanout safe under duplicate delivery.
type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) error
	CreateAll(ctx context.Context, ns []models.Notification) error
}
