package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"firewatch/models"
)

// Memory is an in-process store used by tests and local runs. It implements
// DeviceStore, RegistrationStore and NotificationStore.
type Memory struct {
	mu            sync.RWMutex
	devices       map[string]map[string]interface{}
	history       map[string]map[string]models.AlertHistoryEntry
	registrations []models.Registration
	notifications map[string]models.Notification
}

func NewMemory() *Memory {
	return &Memory{
		devices:       make(map[string]map[string]interface{}),
		history:       make(map[string]map[string]models.AlertHistoryEntry),
		notifications: make(map[string]models.Notification),
	}
}

func (m *Memory) Device(_ context.Context, deviceID string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.devices[deviceID]
	if !ok {
		return nil, nil
	}
	return copyDoc(doc), nil
}

func (m *Memory) Devices(_ context.Context) (map[string]map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]interface{}, len(m.devices))
	for id, doc := range m.devices {
		out[id] = copyDoc(doc)
	}
	return out, nil
}

func (m *Memory) UpdateDevice(_ context.Context, deviceID string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.devices[deviceID]
	if doc == nil {
		doc = make(map[string]interface{})
		m.devices[deviceID] = doc
	}
	for k, v := range fields {
		doc[k] = copyValue(v)
	}
	return nil
}

func (m *Memory) UpdateStatus(_ context.Context, deviceID string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.devices[deviceID]
	if doc == nil {
		doc = make(map[string]interface{})
		m.devices[deviceID] = doc
	}
	status, _ := doc["status"].(map[string]interface{})
	if status == nil {
		status = make(map[string]interface{})
		doc["status"] = status
	}
	for k, v := range fields {
		status[k] = copyValue(v)
	}
	return nil
}

func (m *Memory) AppendHistory(_ context.Context, deviceID string, entry models.AlertHistoryEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[deviceID]
	if entries == nil {
		entries = make(map[string]models.AlertHistoryEntry)
		m.history[deviceID] = entries
	}
	id := uuid.NewString()
	entry.ID = id
	entries[id] = entry
	return id, nil
}

func (m *Memory) History(_ context.Context, deviceID string) ([]models.AlertHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]models.AlertHistoryEntry, 0, len(m.history[deviceID]))
	for _, e := range m.history[deviceID] {
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *Memory) RemoveHistory(_ context.Context, deviceID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.history[deviceID], id)
	}
	return nil
}

func (m *Memory) UpdateOnline(_ context.Context, updates map[string]models.OnlineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for deviceID, state := range updates {
		doc := m.devices[deviceID]
		if doc == nil {
			doc = make(map[string]interface{})
			m.devices[deviceID] = doc
		}
		doc["isOnline"] = state.IsOnline
		doc["lastChecked"] = float64(state.LastChecked)
	}
	return nil
}

func (m *Memory) ListByDevice(_ context.Context, deviceID string) ([]models.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Registration
	for _, reg := range m.registrations {
		if reg.DeviceID == deviceID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (m *Memory) Create(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.notifications[n.ID] = n
	return nil
}

func (m *Memory) CreateAll(_ context.Context, ns []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		m.notifications[n.ID] = n
	}
	return nil
}

// AddRegistration seeds a device registration.
func (m *Memory) AddRegistration(reg models.Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, reg)
}

// SeedDevice replaces a device's raw document.
func (m *Memory) SeedDevice(deviceID string, doc map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[deviceID] = copyDoc(doc)
}

// Notifications returns all stored notifications.
func (m *Memory) Notifications() []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n)
	}
	return out
}

func copyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return copyDoc(m)
	}
	return v
}
