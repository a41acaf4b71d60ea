// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import "fmt"

// AnomalyType represents different types of measurement anomalies
type AnomalyType int

const (
	AnomalyPHRange AnomalyType = iota
	AnomalyRedoxRange
	AnomalyTempRange
	AnomalySaltRange
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyPHRange:
		return "ph_range"
	case AnomalyRedoxRange:
		return "redox_range"
	case AnomalyTempRange:
		return "temperature_range"
	case AnomalySaltRange:
		return "salt_range"
	default:
		return "unknown"
	}
}

// Plausible sensor maxima. Measurements decode from unsigned words, so only
// the upper bound can be exceeded.
const (
	MaxPH          = 14.0
	MaxRedox       = 2000.0
	MaxTemperature = 60.0
	MaxSalt        = 20.0
)

// ValidationError represents a measurement value outside its plausible range
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMeasurement checks decoded values against plausible sensor ranges.
// Returns a slice of validation errors (empty if the measurement is plausible).
func ValidateMeasurement(m Measurement) []ValidationError {
	errors := []ValidationError{}

	if m.PH > MaxPH {
		errors = append(errors, ValidationError{
			Type:    AnomalyPHRange,
			Message: fmt.Sprintf("pH out of range (%.2f, max %.0f)", m.PH, MaxPH),
			Details: map[string]interface{}{"value": m.PH, "max": MaxPH},
		})
	}

	if m.Redox > MaxRedox {
		errors = append(errors, ValidationError{
			Type:    AnomalyRedoxRange,
			Message: fmt.Sprintf("Redox out of range (%.0f mV, max %.0f)", m.Redox, MaxRedox),
			Details: map[string]interface{}{"value": m.Redox, "max": MaxRedox},
		})
	}

	if m.Temperature > MaxTemperature {
		errors = append(errors, ValidationError{
			Type:    AnomalyTempRange,
			Message: fmt.Sprintf("Temperature out of range (%.1f°C, max %.0f°C)", m.Temperature, MaxTemperature),
			Details: map[string]interface{}{"value": m.Temperature, "max": MaxTemperature},
		})
	}

	if m.Salt > MaxSalt {
		errors = append(errors, ValidationError{
			Type:    AnomalySaltRange,
			Message: fmt.Sprintf("Salt out of range (%.1f g/L, max %.0f g/L)", m.Salt, MaxSalt),
			Details: map[string]interface{}{"value": m.Salt, "max": MaxSalt},
		})
	}

	return errors
}
