package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"firewatch/models"
	"firewatch/rules"
	"firewatch/store"
)

// Monitor hosts the reactive handlers that keep derived device state
// (alert history, notifications, online flags) in sync with raw device
// writes. All state lives in the store; handlers are stateless between
// invocations.
type Monitor struct {
	devices              store.DeviceStore
	fanout               *Fanout
	logger               *zap.Logger
	offlineThreshold     time.Duration
	sensorStaleThreshold time.Duration
	clock                func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorClock overrides the clock.
func WithMonitorClock(clock func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewMonitor(devices store.DeviceStore, fanout *Fanout, offlineThreshold, sensorStaleThreshold time.Duration, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		devices:              devices,
		fanout:               fanout,
		logger:               logger,
		offlineThreshold:     offlineThreshold,
		sensorStaleThreshold: sensorStaleThreshold,
		clock:                time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register subscribes every handler on the dispatcher.
func (m *Monitor) Register(d *Dispatcher) {
	d.OnDeviceChange("alert_transition", m.HandleAlertTransition)
	d.OnDeviceChange("sensor_freshness", m.HandleSensorFreshness)
	d.OnDeviceChange("mark_online", m.HandleMarkOnline)
	d.OnTick("online_sweep", m.SweepOnlineStatus)
}

// HandleAlertTransition fires the fanout when a write moved the device from
// Safe into Alert.
func (m *Monitor) HandleAlertTransition(ctx context.Context, change DeviceChange) error {
	if !rules.DetectTransition(change.Before, change.After) {
		return nil
	}
	m.logger.Info("Alert transition detected", zap.String("device_id", change.DeviceID))
	return m.fanout.HandleTransition(ctx, change.DeviceID, change.After)
}

// HandleSensorFreshness recomputes status.noSensorReadings whenever the
// device's button-event timestamp was written.
func (m *Monitor) HandleSensorFreshness(ctx context.Context, change DeviceChange) error {
	if change.After == nil {
		return nil
	}
	if rules.StatusLastEventAt(change.Before) == rules.StatusLastEventAt(change.After) {
		return nil
	}

	stale := rules.SensorsStale(change.After, m.clock(), m.sensorStaleThreshold)
	if err := m.devices.UpdateStatus(ctx, change.DeviceID, map[string]interface{}{
		"noSensorReadings": stale,
	}); err != nil {
		return err
	}

	m.logger.Debug("Sensor freshness updated",
		zap.String("device_id", change.DeviceID),
		zap.Bool("no_sensor_readings", stale))
	return nil
}

// HandleMarkOnline promotes a device to online as soon as it sends data.
// Updates whose only delta is in the tracker-owned fields are ignored so
// the tracker's own writes cannot re-trigger it.
func (m *Monitor) HandleMarkOnline(ctx context.Context, change DeviceChange) error {
	if change.Before == nil || change.After == nil {
		return nil
	}
	if !rules.HasDataChange(change.Before, change.After, rules.OnlineFields) {
		return nil
	}

	lastSeen := rules.ResolveLastSeen(change.After)
	if lastSeen == 0 {
		lastSeen = m.clock().UnixMilli()
	}
	if err := m.devices.UpdateDevice(ctx, change.DeviceID, map[string]interface{}{
		"isOnline": true,
		"lastSeen": lastSeen,
	}); err != nil {
		return err
	}

	m.logger.Debug("Device promoted online",
		zap.String("device_id", change.DeviceID),
		zap.Int64("last_seen", lastSeen))
	return nil
}

// SweepOnlineStatus walks all devices and reconciles their isOnline flags
// against the offline threshold. Only devices whose computed state differs
// from the stored one are written, in a single grouped update. Store
// failures are logged and swallowed: the next sweep self-heals.
func (m *Monitor) SweepOnlineStatus(ctx context.Context, now time.Time) error {
	devices, err := m.devices.Devices(ctx)
	if err != nil {
		m.logger.Error("Online sweep failed to read devices", zap.Error(err))
		return nil
	}

	updates := make(map[string]models.OnlineState)
	for deviceID, doc := range devices {
		if doc == nil {
			continue
		}
		lastSeen := rules.ResolveLastSeen(doc)
		online := rules.IsOnline(lastSeen, now, m.offlineThreshold)

		current, ok := doc["isOnline"].(bool)
		if ok && current == online {
			continue
		}
		updates[deviceID] = models.OnlineState{
			IsOnline:    online,
			LastChecked: now.UnixMilli(),
		}
		m.logger.Info("Device online state changed",
			zap.String("device_id", deviceID),
			zap.Bool("is_online", online),
			zap.Int64("last_seen", lastSeen))
	}

	if len(updates) == 0 {
		return nil
	}
	if err := m.devices.UpdateOnline(ctx, updates); err != nil {
		m.logger.Error("Online sweep failed to write updates",
			zap.Int("update_count", len(updates)),
			zap.Error(err))
		return nil
	}

	m.logger.Info("Online sweep completed", zap.Int("updated_devices", len(updates)))
	return nil
}
