package rules

import (
	"encoding/json"
	"time"

	"firewatch/models"
)

// Field synonyms across firmware generations. Older boards write flat
// fields (smoke, smokeLevel, mq2), newer ones nest readings under dht and
// mq2_do. The chains below resolve them in a fixed priority order.
var (
	smokeFields     = []string{"smokeLevel", "smoke", "smokeAnalog", "mq2"}
	alertMessageSet = map[string]bool{
		"help requested":           true,
		"alarm has been triggered": true,
	}
)

// Normalize maps a raw device document into a canonical Reading using the
// current wall clock as the timestamp fallback.
func Normalize(deviceID string, payload map[string]interface{}) models.Reading {
	return NormalizeAt(deviceID, payload, time.Now())
}

// NormalizeAt is Normalize with an explicit "now". It never mutates payload
// and never fails: a nil or malformed payload yields a Reading holding only
// defaults.
func NormalizeAt(deviceID string, payload map[string]interface{}, now time.Time) models.Reading {
	r := models.Reading{
		DeviceID:    deviceID,
		Timestamp:   now,
		GasStatus:   "normal",
		ButtonState: models.ButtonStateIdle,
		ButtonEvent: models.ButtonIdle,
	}
	if payload == nil {
		return r
	}

	status := asMap(payload["status"])
	dht := asMap(payload["dht"])
	mq2do := asMap(payload["mq2_do"])

	// Timestamp: first non-zero instant wins, in fixed priority order.
	for _, ms := range []int64{
		fieldMillis(status, "lastEventAt"),
		fieldMillis(payload, "lastSeen"),
		fieldMillis(dht, "timestamp"),
		fieldMillis(mq2do, "timestamp"),
		fieldMillis(payload, "timestamp"),
	} {
		if ms != 0 {
			r.Timestamp = time.UnixMilli(ms)
			break
		}
	}

	// Smoke analog value: zero values fall through to later synonyms.
	for _, field := range smokeFields {
		if v, ok := asNumber(payload[field]); ok && v != 0 {
			r.SmokeAnalog = v
			break
		}
	}

	r.SmokeDetected = asBool(payload["smokeDetected"]) || asBool(mq2do["smokeDetected"])

	if v, ok := asNumber(payload["temperature"]); ok {
		r.Temperature = &v
	} else if v, ok := asNumber(dht["temperature"]); ok {
		r.Temperature = &v
	}
	if v, ok := asNumber(payload["humidity"]); ok {
		r.Humidity = &v
	} else if v, ok := asNumber(dht["humidity"]); ok {
		r.Humidity = &v
	}

	if s, ok := asString(payload["gasStatus"]); ok && s != "" {
		r.GasStatus = s
	}
	r.SensorError = asBool(payload["sensorError"])
	if s, ok := asString(payload["lastType"]); ok {
		r.LastType = s
	}

	if s, ok := asString(status["state"]); ok && s != "" {
		r.ButtonState = s
	}
	switch r.ButtonState {
	case models.ButtonStateAlert:
		r.ButtonEvent = models.ButtonAlert
	case models.ButtonStateSprinkler:
		r.ButtonEvent = models.ButtonSprinkler
	default:
		r.ButtonEvent = models.ButtonIdle
	}

	switch r.ButtonEvent {
	case models.ButtonAlert:
		r.Message = "alert triggered"
	case models.ButtonSprinkler:
		r.Message = "sprinkler activated"
	default:
		if s, ok := asString(payload["message"]); ok && s != "" {
			r.Message = s
		} else if r.SensorError {
			r.Message = "Sensor Error"
		}
	}

	return r
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asNumber accepts the numeric shapes JSON decoding and the RTDB client
// produce for the same document field.
func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asBool(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func fieldMillis(m map[string]interface{}, key string) int64 {
	if m == nil {
		return 0
	}
	if v, ok := asNumber(m[key]); ok {
		return int64(v)
	}
	return 0
}
