package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch/models"
)

func TestMemoryDeviceCopyIsolation(t *testing.T) {
	mem := NewMemory()
	mem.SeedDevice("dev", map[string]interface{}{
		"gasStatus": "normal",
		"dht":       map[string]interface{}{"temperature": float64(24)},
	})

	doc, err := mem.Device(context.Background(), "dev")
	require.NoError(t, err)

	doc["gasStatus"] = "detected"
	doc["dht"].(map[string]interface{})["temperature"] = float64(99)

	fresh, err := mem.Device(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, "normal", fresh["gasStatus"])
	assert.Equal(t, float64(24), fresh["dht"].(map[string]interface{})["temperature"])
}

func TestMemoryDeviceMissing(t *testing.T) {
	mem := NewMemory()
	doc, err := mem.Device(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMemoryUpdateDeviceMerges(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.UpdateDevice(ctx, "dev", map[string]interface{}{"gasStatus": "normal"}))
	require.NoError(t, mem.UpdateDevice(ctx, "dev", map[string]interface{}{"isOnline": true}))

	doc, err := mem.Device(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, "normal", doc["gasStatus"])
	assert.Equal(t, true, doc["isOnline"])
}

func TestMemoryUpdateStatusNestedMerge(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	mem.SeedDevice("dev", map[string]interface{}{
		"status": map[string]interface{}{"state": "idle"},
	})

	require.NoError(t, mem.UpdateStatus(ctx, "dev", map[string]interface{}{"noSensorReadings": true}))

	doc, err := mem.Device(ctx, "dev")
	require.NoError(t, err)
	status := doc["status"].(map[string]interface{})
	assert.Equal(t, "idle", status["state"], "unrelated status fields survive")
	assert.Equal(t, true, status["noSensorReadings"])
}

func TestMemoryHistoryAppendAndRemove(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	id1, err := mem.AppendHistory(ctx, "dev", models.AlertHistoryEntry{Timestamp: 1, DeviceID: "dev"})
	require.NoError(t, err)
	id2, err := mem.AppendHistory(ctx, "dev", models.AlertHistoryEntry{Timestamp: 2, DeviceID: "dev"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	entries, err := mem.History(ctx, "dev")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, mem.RemoveHistory(ctx, "dev", []string{id1}))
	entries, err = mem.History(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id2, entries[0].ID)
}

func TestMemoryUpdateOnline(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.UpdateOnline(ctx, map[string]models.OnlineState{
		"a": {IsOnline: true, LastChecked: 1000},
		"b": {IsOnline: false, LastChecked: 1000},
	}))

	devices, err := mem.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, devices["a"]["isOnline"])
	assert.Equal(t, float64(1000), devices["a"]["lastChecked"])
	assert.Equal(t, false, devices["b"]["isOnline"])
}

func TestMemoryCreateAllOverwritesByID(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateAll(ctx, []models.Notification{
		{ID: "n1", Title: "first"},
	}))
	require.NoError(t, mem.CreateAll(ctx, []models.Notification{
		{ID: "n1", Title: "second"},
		{Title: "anonymous"},
	}))

	notifs := mem.Notifications()
	require.Len(t, notifs, 2)
	for _, n := range notifs {
		if n.ID == "n1" {
			assert.Equal(t, "second", n.Title)
		}
	}
}
