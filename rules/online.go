package rules

import (
	"reflect"
	"time"
)

// OnlineFields are the per-device fields owned by the online-state tracker.
// The immediate-promotion handler ignores writes whose only delta is in this
// set; lastSeen is included because the promotion path itself refreshes it.
var OnlineFields = []string{"isOnline", "lastChecked", "lastSeen"}

// ResolveLastSeen picks the best-known last-activity instant (epoch millis)
// from a raw device document: lastSeen, then the generic timestamp, then the
// sensor timestamp, then the button-event timestamp, else 0.
func ResolveLastSeen(payload map[string]interface{}) int64 {
	if payload == nil {
		return 0
	}
	if ms := fieldMillis(payload, "lastSeen"); ms != 0 {
		return ms
	}
	if ms := fieldMillis(payload, "timestamp"); ms != 0 {
		return ms
	}
	if ms := fieldMillis(asMap(payload["dht"]), "timestamp"); ms != 0 {
		return ms
	}
	return fieldMillis(asMap(payload["status"]), "lastEventAt")
}

// StatusLastEventAt extracts the button-event timestamp (epoch millis) a
// device wrote under status.lastEventAt, 0 when absent.
func StatusLastEventAt(payload map[string]interface{}) int64 {
	if payload == nil {
		return 0
	}
	return fieldMillis(asMap(payload["status"]), "lastEventAt")
}

// IsOnline reports whether a device whose last activity was at lastSeen
// (epoch millis) is still considered online at now. A zero lastSeen is
// always offline.
func IsOnline(lastSeen int64, now time.Time, threshold time.Duration) bool {
	if lastSeen == 0 {
		return false
	}
	return now.UnixMilli()-lastSeen < threshold.Milliseconds()
}

// SensorsStale reports whether neither sensor block has reported recently.
// It compares now against the freshest of the dht and mq2 timestamps; a
// device that never reported is stale.
func SensorsStale(payload map[string]interface{}, now time.Time, threshold time.Duration) bool {
	dhtTs := fieldMillis(asMap(payload["dht"]), "timestamp")
	mq2Ts := fieldMillis(asMap(payload["mq2"]), "timestamp")
	latest := dhtTs
	if mq2Ts > latest {
		latest = mq2Ts
	}
	if latest == 0 {
		return true
	}
	return now.UnixMilli()-latest > threshold.Milliseconds()
}

// HasDataChange reports whether before and after differ in any field outside
// the excluded set. Values are compared deeply, so overwriting a field with
// an equal value does not count as a change.
func HasDataChange(before, after map[string]interface{}, excluded []string) bool {
	skip := make(map[string]bool, len(excluded))
	for _, f := range excluded {
		skip[f] = true
	}
	keys := make(map[string]bool, len(before)+len(after))
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}
	for k := range keys {
		if skip[k] {
			continue
		}
		if !reflect.DeepEqual(before[k], after[k]) {
			return true
		}
	}
	return false
}
