// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"math"
	"time"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// Payload is the JSON body posted for one measurement
type Payload struct {
	Timestamp          string  `json:"timestamp"`
	PH                 float64 `json:"ph"`
	Redox              float64 `json:"redox"`
	Temperature        float64 `json:"temperature"`
	Salt               float64 `json:"salt"`
	Alarm              uint8   `json:"alarm"`
	Warning            uint8   `json:"warning"`
	AlarmRedox         uint8   `json:"alarm_redox"`
	RegulatorType      uint8   `json:"regulator_type"`
	PumpPlusActive     bool    `json:"pump_plus_active"`
	PumpMinusActive    bool    `json:"pump_minus_active"`
	PumpChlorineActive bool    `json:"pump_chlore_active"`
	FilterRelayActive  bool    `json:"filter_relay_active"`
}

// NewPayload rounds a measurement for presentation: pH to 2 decimals, redox
// to a whole mV, temperature and salt to 1 decimal.
func NewPayload(m corelec.Measurement) Payload {
	return Payload{
		Timestamp:          m.Timestamp.UTC().Format(time.RFC3339Nano),
		PH:                 round(m.PH, 2),
		Redox:              round(m.Redox, 0),
		Temperature:        round(m.Temperature, 1),
		Salt:               round(m.Salt, 1),
		Alarm:              m.Alarm,
		Warning:            m.Warning,
		AlarmRedox:         m.AlarmRedox,
		RegulatorType:      m.RegulatorType,
		PumpPlusActive:     m.PumpPlusActive,
		PumpMinusActive:    m.PumpMinusActive,
		PumpChlorineActive: m.PumpChlorineActive,
		FilterRelayActive:  m.FilterRelayActive,
	}
}

// Fields returns the payload values keyed by their JSON names, for sinks
// that store measurements as column or field sets.
func (p Payload) Fields() map[string]any {
	return map[string]any{
		"ph":                  p.PH,
		"redox":               p.Redox,
		"temperature":         p.Temperature,
		"salt":                p.Salt,
		"alarm":               int64(p.Alarm),
		"warning":             int64(p.Warning),
		"alarm_redox":         int64(p.AlarmRedox),
		"pump_plus_active":    p.PumpPlusActive,
		"pump_minus_active":   p.PumpMinusActive,
		"pump_chlore_active":  p.PumpChlorineActive,
		"filter_relay_active": p.FilterRelayActive,
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// ErrorEvent is the JSON body posted by the Reporter
type ErrorEvent struct {
	Timestamp    string         `json:"timestamp"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	Context      map[string]any `json:"context,omitempty"`
	Source       string         `json:"source"`
}
