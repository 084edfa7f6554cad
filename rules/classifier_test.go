package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"firewatch/models"
)

func TestClassifyPredicateChain(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    models.Status
	}{
		{"empty payload", map[string]interface{}{}, models.StatusSafe},
		{"sensor error", map[string]interface{}{"sensorError": true}, models.StatusAlert},
		{"help requested", map[string]interface{}{"message": "help requested"}, models.StatusAlert},
		{"alarm triggered message", map[string]interface{}{"message": "alarm has been triggered"}, models.StatusAlert},
		{"unrelated message", map[string]interface{}{"message": "all good"}, models.StatusSafe},
		{"last type alarm", map[string]interface{}{"lastType": "alarm"}, models.StatusAlert},
		{"gas detected", map[string]interface{}{"gasStatus": "detected"}, models.StatusAlert},
		{"gas critical uppercase", map[string]interface{}{"gasStatus": "CRITICAL"}, models.StatusAlert},
		{"gas normal", map[string]interface{}{"gasStatus": "normal"}, models.StatusSafe},
		{"smoke flag set", map[string]interface{}{"smokeDetected": true}, models.StatusAlert},
		{"nested smoke flag", map[string]interface{}{"mq2_do": map[string]interface{}{"smokeDetected": true}}, models.StatusAlert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPayload(tt.payload, DigitalSmoke()))
		})
	}
}

func TestClassifyNilPayloadIsSafe(t *testing.T) {
	assert.Equal(t, models.StatusSafe, ClassifyPayload(nil, DigitalSmoke()))
	assert.Equal(t, models.StatusSafe, ClassifyPayload(nil, AnalogSmoke(0)))
}

func TestClassifySmokePoliciesDiverge(t *testing.T) {
	// Zero smokeLevel falls through to smoke=1800; only the analog policy
	// considers that an alert, the digital flag is unset.
	payload := map[string]interface{}{
		"smokeLevel": float64(0),
		"smoke":      float64(1800),
	}

	assert.Equal(t, models.StatusAlert, ClassifyPayload(payload, AnalogSmoke(0)))
	assert.Equal(t, models.StatusSafe, ClassifyPayload(payload, DigitalSmoke()))
}

func TestClassifyAnalogThreshold(t *testing.T) {
	at := func(level float64) models.Status {
		return ClassifyPayload(map[string]interface{}{"smoke": level}, AnalogSmoke(0))
	}

	assert.Equal(t, models.StatusSafe, at(1500))
	assert.Equal(t, models.StatusAlert, at(1501))

	custom := ClassifyPayload(map[string]interface{}{"smoke": float64(900)}, AnalogSmoke(800))
	assert.Equal(t, models.StatusAlert, custom)
}

func TestClassifySynonymIdempotence(t *testing.T) {
	// Payloads differing only in which synonym carries the smoke value
	// classify identically.
	variants := []map[string]interface{}{
		{"smokeLevel": float64(1800)},
		{"smoke": float64(1800)},
		{"smokeAnalog": float64(1800)},
		{"mq2": float64(1800)},
	}
	for _, payload := range variants {
		assert.Equal(t, models.StatusAlert, ClassifyPayload(payload, AnalogSmoke(0)))
		assert.Equal(t, models.StatusSafe, ClassifyPayload(payload, DigitalSmoke()))
	}
}

func TestClassifyWithButtonOverride(t *testing.T) {
	safe := Normalize("dev-1", map[string]interface{}{
		"status": map[string]interface{}{"state": "alert"},
	})
	assert.Equal(t, models.StatusAlert, ClassifyWithButton(safe, DigitalSmoke()))

	// Sprinkler activation short-circuits the predicate chain entirely
	critical := Normalize("dev-1", map[string]interface{}{
		"gasStatus": "critical",
		"status":    map[string]interface{}{"state": "sprinkler"},
	})
	assert.Equal(t, models.StatusSafe, ClassifyWithButton(critical, DigitalSmoke()))

	// Idle defers to the chain
	idle := Normalize("dev-1", map[string]interface{}{
		"gasStatus": "critical",
	})
	assert.Equal(t, models.StatusAlert, ClassifyWithButton(idle, DigitalSmoke()))
}
