package rules

import (
	"strings"

	"firewatch/models"
)

// DefaultSmokeThreshold is the analog smoke level above which a reading is
// classified as Alert under the analog policy.
const DefaultSmokeThreshold = 1500

// SmokePolicy selects how smoke readings are interpreted: the digital
// detection flag, or an analog level threshold. The two variants are not
// equivalent and call sites must pick one explicitly.
type SmokePolicy struct {
	analog    bool
	threshold float64
}

// DigitalSmoke classifies on the smokeDetected flag.
func DigitalSmoke() SmokePolicy {
	return SmokePolicy{}
}

// AnalogSmoke classifies on smokeAnalog exceeding threshold. A non-positive
// threshold falls back to DefaultSmokeThreshold.
func AnalogSmoke(threshold float64) SmokePolicy {
	if threshold <= 0 {
		threshold = DefaultSmokeThreshold
	}
	return SmokePolicy{analog: true, threshold: threshold}
}

// Classify evaluates the ordered predicate chain over a normalized reading.
// First match wins, otherwise Safe. It is pure and total.
func Classify(r models.Reading, policy SmokePolicy) models.Status {
	if r.SensorError {
		return models.StatusAlert
	}
	if alertMessageSet[r.Message] {
		return models.StatusAlert
	}
	if r.LastType == "alarm" {
		return models.StatusAlert
	}
	switch strings.ToLower(r.GasStatus) {
	case "critical", "detected":
		return models.StatusAlert
	}
	if policy.analog {
		if r.SmokeAnalog > policy.threshold {
			return models.StatusAlert
		}
	} else if r.SmokeDetected {
		return models.StatusAlert
	}
	return models.StatusSafe
}

// ClassifyWithButton applies the physical-button override before the
// predicate chain: an alert press forces Alert, sprinkler activation forces
// Safe, idle defers to Classify.
func ClassifyWithButton(r models.Reading, policy SmokePolicy) models.Status {
	switch r.ButtonEvent {
	case models.ButtonAlert:
		return models.StatusAlert
	case models.ButtonSprinkler:
		return models.StatusSafe
	}
	return Classify(r, policy)
}

// ClassifyPayload normalizes and classifies a raw payload. A nil payload is
// Safe.
func ClassifyPayload(payload map[string]interface{}, policy SmokePolicy) models.Status {
	if payload == nil {
		return models.StatusSafe
	}
	return Classify(Normalize("", payload), policy)
}
