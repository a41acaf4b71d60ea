// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownMnemonic is returned by Decode for frame types without a decoder
var ErrUnknownMnemonic = errors.New("no decoder for mnemonic")

// DecodeFunc decodes a validated frame into a Response
type DecodeFunc func(f Frame) Response

// now is the measurement capture clock
var now = time.Now

var decoders = map[byte]DecodeFunc{
	MnemonicMeasures:  func(f Frame) Response { return decodeMeasurement(f) },
	MnemonicSetpoints: decodePHSettings,
	MnemonicRedox:     decodeRedoxSettings,
	MnemonicDefaults:  decodeThresholds,
	MnemonicAux:       decodeAuxState,
}

// RegisterDecoder installs or replaces the decoder for a mnemonic.
// Not safe for use concurrently with Decode.
func RegisterDecoder(mnemonic byte, fn DecodeFunc) {
	decoders[mnemonic] = fn
}

// Decode dispatches a frame to the decoder registered for its mnemonic
func Decode(f Frame) (Response, error) {
	fn, ok := decoders[f.Mnemonic()]
	if !ok {
		return nil, fmt.Errorf("%w '%c' (0x%02X)", ErrUnknownMnemonic, printable(f.Mnemonic()), f.Mnemonic())
	}
	return fn(f), nil
}

// DecodeMeasurement decodes an M frame. It reports false for any other mnemonic.
func DecodeMeasurement(f Frame) (Measurement, bool) {
	if f.Mnemonic() != MnemonicMeasures {
		return Measurement{}, false
	}
	return decodeMeasurement(f), true
}

func decodeMeasurement(f Frame) Measurement {
	flags := f.Byte(12)
	return Measurement{
		Timestamp:          now().UTC(),
		PH:                 float64(f.Word(2)) / PHScale,
		Redox:              float64(f.Word(4)),
		Temperature:        float64(f.Word(6)) / TemperatureScale,
		Salt:               float64(f.Word(8)) / SaltScale,
		Alarm:              f.Byte(10),
		Warning:            f.Byte(11) & 0x0F,
		AlarmRedox:         f.Byte(11) >> 4,
		RegulatorType:      flags & regulatorMask,
		PumpPlusActive:     flags&FlagPumpPlus != 0,
		PumpMinusActive:    flags&FlagPumpMinus != 0,
		PumpChlorineActive: flags&FlagPumpChlorine != 0,
		FilterRelayActive:  flags&FlagFilterRelay != 0,
	}
}

func decodePHSettings(f Frame) Response {
	return PHSettings{
		Setpoint: float64(f.Word(2)) / PHScale,
		ErrorMax: float64(f.Word(10)) / PHScale,
		ErrorMin: float64(f.Word(12)) / PHScale,
	}
}

func decodeRedoxSettings(f Frame) Response {
	return RedoxSettings{
		Setpoint:       float64(f.Word(2)),
		AmperoSetpoint: float64(f.Word(2)) / 100.0,
		PINCode:        f.Word(12),
	}
}

func decodeThresholds(f Frame) Response {
	return Thresholds{
		TempErrorMin:   float64(f.Byte(5)),
		TempWarningMin: float64(f.Byte(7)),
		SaltWarningMin: float64(f.Byte(8)) / SaltScale,
		SaltErrorMin:   float64(f.Byte(9)) / SaltScale,
	}
}

func decodeAuxState(f Frame) Response {
	b10 := f.Byte(10)
	b13 := f.Byte(13)
	boost := f.Word(2)
	return AuxState{
		ElectrolysisSetpoint: f.Byte(2),
		BoostMinutes:         boost,
		BoostActive:          boost > 0,
		CoverLevel:           f.Byte(9),
		Salinity:             b10 & 0x03,
		CoverActive:          bit(b10, 4),
		CoverForced:          bit(b10, 3),
		FlowSwitch:           bit(b10, 2),
		ElectrolysisAlarm:    f.Byte(12) & 0x0F,
		Sleep:                bit(b13, 6) && bit(b13, 5),
		Timer:                bit(b13, 7) && bit(b13, 5),
		DurationST:           b13 & 0x1F,
	}
}

func bit(b byte, n uint) bool {
	return b&(1<<n) != 0
}

func printable(b byte) byte {
	if b < 0x20 || b > 0x7E {
		return '?'
	}
	return b
}
