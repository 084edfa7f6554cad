package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectTransitionEdgeTriggered(t *testing.T) {
	safe := map[string]interface{}{"gasStatus": "normal"}
	alert := map[string]interface{}{"gasStatus": "detected"}

	assert.True(t, DetectTransition(safe, alert), "Safe to Alert fires")
	assert.False(t, DetectTransition(alert, alert), "staying in Alert does not fire")
	assert.False(t, DetectTransition(alert, safe), "recovery does not fire")
	assert.False(t, DetectTransition(safe, safe))
}

func TestDetectTransitionOnCreation(t *testing.T) {
	alert := map[string]interface{}{"sensorError": true}
	safe := map[string]interface{}{}

	assert.True(t, DetectTransition(nil, alert), "first observed state already Alert fires")
	assert.False(t, DetectTransition(nil, safe))
}

func TestDetectTransitionMissingCurrentIsNoop(t *testing.T) {
	alert := map[string]interface{}{"gasStatus": "critical"}

	assert.False(t, DetectTransition(alert, nil))
	assert.False(t, DetectTransition(nil, nil))
}

func TestDetectTransitionUsesDigitalSmokePolicy(t *testing.T) {
	safe := map[string]interface{}{}

	// High analog value without the digital flag is not an alert here
	analogOnly := map[string]interface{}{"smoke": float64(1800)}
	assert.False(t, DetectTransition(safe, analogOnly))

	flagged := map[string]interface{}{
		"mq2_do": map[string]interface{}{"smokeDetected": true},
	}
	assert.True(t, DetectTransition(safe, flagged))
}

func TestDetectTransitionButtonOverride(t *testing.T) {
	idle := map[string]interface{}{
		"status": map[string]interface{}{"state": "idle"},
	}
	pressed := map[string]interface{}{
		"status": map[string]interface{}{"state": "alert"},
	}

	assert.True(t, DetectTransition(idle, pressed))
	assert.False(t, DetectTransition(pressed, pressed))

	// Sprinkler forces the previous state Safe, so a later gas alert fires
	sprinkler := map[string]interface{}{
		"gasStatus": "critical",
		"status":    map[string]interface{}{"state": "sprinkler"},
	}
	gasAlert := map[string]interface{}{
		"gasStatus": "critical",
	}
	assert.True(t, DetectTransition(sprinkler, gasAlert))
}

func TestDetectTransitionSingleFireScenario(t *testing.T) {
	// normal -> detected fires exactly once; an unchanged rewrite fires none
	prev := map[string]interface{}{"gasStatus": "normal"}
	curr := map[string]interface{}{"gasStatus": "detected"}

	fires := 0
	if DetectTransition(prev, curr) {
		fires++
	}
	if DetectTransition(curr, curr) {
		fires++
	}
	assert.Equal(t, 1, fires)
}
