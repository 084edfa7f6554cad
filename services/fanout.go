package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"firewatch/models"
	"firewatch/rules"
	"firewatch/store"
)

// AlertNotifier pushes an alert to an out-of-band channel (Telegram).
type AlertNotifier interface {
	SendAlert(deviceName string, entry models.AlertHistoryEntry) error
}

// TransitionGuard suppresses duplicate deliveries of the same transition.
type TransitionGuard interface {
	FirstDelivery(ctx context.Context, deviceID string, transitionMillis int64) (bool, error)
}

// Fanout reacts to a detected alert transition: it appends one capped
// history entry for the device and creates one notification per subscribed
// user in a single atomic batch.
type Fanout struct {
	devices    store.DeviceStore
	regs       store.RegistrationStore
	notifs     store.NotificationStore
	logger     *zap.Logger
	historyCap int
	guard      TransitionGuard
	notifier   AlertNotifier
	clock      func() time.Time
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithHistoryCap overrides the retention cap.
func WithHistoryCap(cap int) FanoutOption {
	return func(f *Fanout) {
		if cap > 0 {
			f.historyCap = cap
		}
	}
}

// WithGuard installs a duplicate-delivery guard.
func WithGuard(guard TransitionGuard) FanoutOption {
	return func(f *Fanout) { f.guard = guard }
}

// WithNotifier installs an out-of-band alert channel.
func WithNotifier(notifier AlertNotifier) FanoutOption {
	return func(f *Fanout) { f.notifier = notifier }
}

// WithFanoutClock overrides the clock.
func WithFanoutClock(clock func() time.Time) FanoutOption {
	return func(f *Fanout) {
		if clock != nil {
			f.clock = clock
		}
	}
}

func NewFanout(devices store.DeviceStore, regs store.RegistrationStore, notifs store.NotificationStore, logger *zap.Logger, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		devices:    devices,
		regs:       regs,
		notifs:     notifs,
		logger:     logger,
		historyCap: 5,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HandleTransition persists the history entry and fans notifications out.
// transitionMillis in guard keys and notification IDs derives from the
// payload's own timestamp, so redelivery of the same change produces the
// same keys.
func (f *Fanout) HandleTransition(ctx context.Context, deviceID string, after map[string]interface{}) error {
	now := f.clock()
	reading := rules.NormalizeAt(deviceID, after, now)
	transitionMillis := reading.Timestamp.UnixMilli()

	if f.guard != nil {
		first, err := f.guard.FirstDelivery(ctx, deviceID, transitionMillis)
		if err != nil {
			// Guard unavailability must not drop alerts
			f.logger.Warn("Transition guard check failed",
				zap.String("device_id", deviceID),
				zap.Error(err))
		} else if !first {
			f.logger.Debug("Duplicate transition delivery suppressed",
				zap.String("device_id", deviceID),
				zap.Int64("transition_ms", transitionMillis))
			return nil
		}
	}

	message := reading.Message
	if message == "" {
		message = "Alert triggered"
	}

	entry := models.AlertHistoryEntry{
		Timestamp:   now.UnixMilli(),
		DeviceID:    deviceID,
		Message:     message,
		GasStatus:   reading.GasStatus,
		SmokeLevel:  reading.SmokeAnalog,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Type:        models.NotificationTypeAlert,
	}

	entryID, err := f.devices.AppendHistory(ctx, deviceID, entry)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := f.trimHistory(ctx, deviceID); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	regs, err := f.regs.ListByDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	deviceName := deviceID
	if len(regs) > 0 {
		notifications := make([]models.Notification, 0, len(regs))
		for _, reg := range regs {
			name := reg.Name
			if name == "" {
				name = deviceID
			}
			deviceName = name
			notifMessage := reading.Message
			if notifMessage == "" {
				notifMessage = "An alert was detected"
			}
			notifications = append(notifications, models.Notification{
				ID:          fmt.Sprintf("%s-%d-%s", deviceID, transitionMillis, reg.AddedBy),
				UserID:      reg.AddedBy,
				DeviceID:    deviceID,
				DeviceName:  name,
				Type:        models.NotificationTypeAlert,
				Title:       "Alert Triggered",
				Message:     notifMessage,
				CreatedAt:   now,
				Read:        false,
				GasStatus:   reading.GasStatus,
				SmokeLevel:  reading.SmokeAnalog,
				Temperature: reading.Temperature,
				Humidity:    reading.Humidity,
			})
		}
		if err := f.notifs.CreateAll(ctx, notifications); err != nil {
			return fmt.Errorf("create notifications: %w", err)
		}
	}

	f.logger.Info("Alert transition fanned out",
		zap.String("device_id", deviceID),
		zap.String("entry_id", entryID),
		zap.String("gas_status", reading.GasStatus),
		zap.Float64("smoke_level", reading.SmokeAnalog),
		zap.Int("subscribers", len(regs)))

	if f.notifier != nil {
		if err := f.notifier.SendAlert(deviceName, entry); err != nil {
			f.logger.Error("Failed to send alert notification",
				zap.String("device_id", deviceID),
				zap.Error(err))
		}
	}

	return nil
}

// trimHistory deletes every entry beyond the cap, most recent first, in one
// grouped store operation. Re-running it is a no-op.
func (f *Fanout) trimHistory(ctx context.Context, deviceID string) error {
	entries, err := f.devices.History(ctx, deviceID)
	if err != nil {
		return err
	}
	if len(entries) <= f.historyCap {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	excess := make([]string, 0, len(entries)-f.historyCap)
	for _, entry := range entries[f.historyCap:] {
		excess = append(excess, entry.ID)
	}
	return f.devices.RemoveHistory(ctx, deviceID, excess)
}
