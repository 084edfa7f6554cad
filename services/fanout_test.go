package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"firewatch/models"
	"firewatch/store"
)

func newTestFanout(t *testing.T, mem *store.Memory, opts ...FanoutOption) *Fanout {
	t.Helper()
	return NewFanout(mem, mem, mem, zap.NewNop(), opts...)
}

func TestHandleTransitionWritesHistoryAndNotifications(t *testing.T) {
	mem := store.NewMemory()
	mem.AddRegistration(models.Registration{DeviceID: "esp32-01", AddedBy: "user-a", Name: "Kitchen"})
	mem.AddRegistration(models.Registration{DeviceID: "esp32-01", AddedBy: "user-b", Name: "Kitchen"})
	mem.AddRegistration(models.Registration{DeviceID: "other", AddedBy: "user-c"})

	fanout := newTestFanout(t, mem)

	payload := map[string]interface{}{
		"sensorError": true,
		"gasStatus":   "normal",
		"timestamp":   float64(1700000000000),
	}
	require.NoError(t, fanout.HandleTransition(context.Background(), "esp32-01", payload))

	entries, err := mem.History(context.Background(), "esp32-01")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Sensor Error", entries[0].Message)
	assert.Equal(t, "esp32-01", entries[0].DeviceID)
	assert.Equal(t, models.NotificationTypeAlert, entries[0].Type)

	notifs := mem.Notifications()
	require.Len(t, notifs, 2, "one notification per registered user of this device")
	users := map[string]bool{}
	for _, n := range notifs {
		users[n.UserID] = true
		assert.Equal(t, "esp32-01", n.DeviceID)
		assert.Equal(t, "Kitchen", n.DeviceName)
		assert.Equal(t, "Alert Triggered", n.Title)
		assert.Equal(t, "Sensor Error", n.Message)
		assert.False(t, n.Read)
	}
	assert.True(t, users["user-a"])
	assert.True(t, users["user-b"])
}

func TestHandleTransitionNoSubscribers(t *testing.T) {
	mem := store.NewMemory()
	fanout := newTestFanout(t, mem)

	payload := map[string]interface{}{"gasStatus": "detected"}
	require.NoError(t, fanout.HandleTransition(context.Background(), "lonely", payload))

	entries, err := mem.History(context.Background(), "lonely")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "history is written even with nobody subscribed")
	assert.Empty(t, mem.Notifications())
}

func TestHandleTransitionMessageFallback(t *testing.T) {
	mem := store.NewMemory()
	mem.AddRegistration(models.Registration{DeviceID: "dev", AddedBy: "u1"})
	fanout := newTestFanout(t, mem)

	payload := map[string]interface{}{"gasStatus": "critical"}
	require.NoError(t, fanout.HandleTransition(context.Background(), "dev", payload))

	entries, _ := mem.History(context.Background(), "dev")
	require.Len(t, entries, 1)
	assert.Equal(t, "Alert triggered", entries[0].Message)

	notifs := mem.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, "An alert was detected", notifs[0].Message)
}

func TestHandleTransitionHistoryRetentionCap(t *testing.T) {
	mem := store.NewMemory()
	base := time.UnixMilli(1700000000000)
	tick := 0
	fanout := newTestFanout(t, mem, WithFanoutClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	for i := 0; i < 7; i++ {
		payload := map[string]interface{}{
			"gasStatus": "detected",
			"timestamp": float64(base.Add(time.Duration(i) * time.Minute).UnixMilli()),
		}
		require.NoError(t, fanout.HandleTransition(context.Background(), "dev", payload))
	}

	entries, err := mem.History(context.Background(), "dev")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// The five most recent survive
	cutoff := base.Add(2 * time.Minute).UnixMilli()
	for _, e := range entries {
		assert.Greater(t, e.Timestamp, cutoff)
	}
}

func TestHandleTransitionCustomCap(t *testing.T) {
	mem := store.NewMemory()
	base := time.UnixMilli(1700000000000)
	tick := 0
	fanout := newTestFanout(t, mem,
		WithHistoryCap(2),
		WithFanoutClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}))

	for i := 0; i < 4; i++ {
		require.NoError(t, fanout.HandleTransition(context.Background(), "dev", map[string]interface{}{
			"gasStatus": "detected",
			"timestamp": float64(base.Add(time.Duration(i) * time.Second).UnixMilli()),
		}))
	}

	entries, err := mem.History(context.Background(), "dev")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestHandleTransitionDeterministicNotificationIDs(t *testing.T) {
	mem := store.NewMemory()
	mem.AddRegistration(models.Registration{DeviceID: "dev", AddedBy: "u1"})
	fanout := newTestFanout(t, mem)

	payload := map[string]interface{}{
		"gasStatus": "detected",
		"timestamp": float64(1700000000000),
	}
	require.NoError(t, fanout.HandleTransition(context.Background(), "dev", payload))
	require.NoError(t, fanout.HandleTransition(context.Background(), "dev", payload))

	notifs := mem.Notifications()
	assert.Len(t, notifs, 1, "redelivery of the same write overwrites the same notification")
	assert.Equal(t, fmt.Sprintf("dev-%d-u1", 1700000000000), notifs[0].ID)
}

type stubGuard struct {
	first bool
	err   error
	calls int
}

func (s *stubGuard) FirstDelivery(_ context.Context, _ string, _ int64) (bool, error) {
	s.calls++
	return s.first, s.err
}

func TestHandleTransitionGuardSuppressesDuplicate(t *testing.T) {
	mem := store.NewMemory()
	guard := &stubGuard{first: false}
	fanout := newTestFanout(t, mem, WithGuard(guard))

	require.NoError(t, fanout.HandleTransition(context.Background(), "dev", map[string]interface{}{
		"gasStatus": "detected",
	}))

	entries, _ := mem.History(context.Background(), "dev")
	assert.Empty(t, entries)
	assert.Equal(t, 1, guard.calls)
}

func TestHandleTransitionGuardFailureDoesNotDropAlert(t *testing.T) {
	mem := store.NewMemory()
	guard := &stubGuard{err: fmt.Errorf("redis unavailable")}
	fanout := newTestFanout(t, mem, WithGuard(guard))

	require.NoError(t, fanout.HandleTransition(context.Background(), "dev", map[string]interface{}{
		"gasStatus": "detected",
	}))

	entries, _ := mem.History(context.Background(), "dev")
	assert.Len(t, entries, 1)
}

type recordingNotifier struct {
	names   []string
	entries []models.AlertHistoryEntry
}

func (r *recordingNotifier) SendAlert(deviceName string, entry models.AlertHistoryEntry) error {
	r.names = append(r.names, deviceName)
	r.entries = append(r.entries, entry)
	return nil
}

func TestHandleTransitionNotifierReceivesDeviceName(t *testing.T) {
	mem := store.NewMemory()
	mem.AddRegistration(models.Registration{DeviceID: "dev", AddedBy: "u1", Name: "Garage"})
	notifier := &recordingNotifier{}
	fanout := newTestFanout(t, mem, WithNotifier(notifier))

	require.NoError(t, fanout.HandleTransition(context.Background(), "dev", map[string]interface{}{
		"gasStatus": "detected",
	}))

	require.Len(t, notifier.names, 1)
	assert.Equal(t, "Garage", notifier.names[0])
	assert.Equal(t, "detected", notifier.entries[0].GasStatus)
}
