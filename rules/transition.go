package rules

import (
	"firewatch/models"
)

// DetectTransition reports whether a write moved a device into Alert.
// It is edge-triggered: repeated writes while already in Alert do not fire,
// and a creation whose first observed state is Alert does (a missing
// previous payload classifies as Safe). A missing current payload is a
// deletion, never a transition.
func DetectTransition(before, after map[string]interface{}) bool {
	if after == nil {
		return false
	}
	return payloadAlert(after) && !payloadAlert(before)
}

func payloadAlert(payload map[string]interface{}) bool {
	if payload == nil {
		return false
	}
	r := Normalize("", payload)
	return ClassifyWithButton(r, DigitalSmoke()) == models.StatusAlert
}
