// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import "time"

// Response is a decoded response frame. The concrete type depends on the
// frame mnemonic.
type Response interface {
	Mnemonic() byte
}

// Measurement is one decoded telemetry sample from an M frame.
// Values keep full precision; rounding is a serialisation concern.
type Measurement struct {
	Timestamp time.Time

	PH          float64 // pH units
	Redox       float64 // mV
	Temperature float64 // °C
	Salt        float64 // g/L

	Alarm         uint8
	Warning       uint8
	AlarmRedox    uint8
	RegulatorType uint8

	PumpPlusActive     bool
	PumpMinusActive    bool
	PumpChlorineActive bool
	FilterRelayActive  bool
}

// Mnemonic implements Response
func (Measurement) Mnemonic() byte { return MnemonicMeasures }

// PHSettings holds the pH setpoint and error thresholds from an S frame
type PHSettings struct {
	Setpoint float64
	ErrorMax float64
	ErrorMin float64
}

// Mnemonic implements Response
func (PHSettings) Mnemonic() byte { return MnemonicSetpoints }

// RedoxSettings holds the redox setpoint from an E frame
type RedoxSettings struct {
	Setpoint       float64 // mV
	AmperoSetpoint float64 // ppm, for amperometric probes
	PINCode        uint16
}

// Mnemonic implements Response
func (RedoxSettings) Mnemonic() byte { return MnemonicRedox }

// Thresholds holds temperature and salt alarm thresholds from a D frame
type Thresholds struct {
	TempErrorMin   float64
	TempWarningMin float64
	SaltWarningMin float64
	SaltErrorMin   float64
}

// Mnemonic implements Response
func (Thresholds) Mnemonic() byte { return MnemonicDefaults }

// AuxState holds electrolysis, boost and cover state from an A frame
type AuxState struct {
	ElectrolysisSetpoint uint8
	BoostMinutes         uint16
	BoostActive          bool
	CoverLevel           uint8
	Salinity             uint8
	CoverActive          bool
	CoverForced          bool
	FlowSwitch           bool
	ElectrolysisAlarm    uint8
	Sleep                bool
	Timer                bool
	DurationST           uint8
}

// Mnemonic implements Response
func (AuxState) Mnemonic() byte { return MnemonicAux }
