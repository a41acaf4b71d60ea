// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame and its decoded payload into a human-readable string
func FormatFrame(f Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	name := FormatMnemonic(f.Mnemonic())

	result := fmt.Sprintf("[%s] %s ('%c') crc=0x%02X\n", timestamp, name, printable(f.Mnemonic()), f.Checksum())

	resp, err := Decode(f)
	if err != nil {
		return result + FormatHex(f.Bytes())
	}
	return result + FormatResponse(resp)
}

// FormatMnemonic returns the human-readable name for a frame type
func FormatMnemonic(m byte) string {
	switch m {
	case MnemonicMeasures:
		return "MEASURES"
	case MnemonicRedox:
		return "REDOX_SETTINGS"
	case MnemonicSetpoints:
		return "PH_SETTINGS"
	case MnemonicAux:
		return "AUX_STATE"
	case MnemonicDefaults:
		return "THRESHOLDS"
	case MnemonicB:
		return "B_FRAME"
	case MnemonicJ:
		return "J_FRAME"
	default:
		return "UNKNOWN"
	}
}

// FormatResponse formats a decoded response payload
func FormatResponse(resp Response) string {
	switch r := resp.(type) {
	case Measurement:
		return FormatMeasurement(r)

	case PHSettings:
		return fmt.Sprintf("  pH Setpoint: %.2f, Error Max: %.2f, Error Min: %.2f\n",
			r.Setpoint, r.ErrorMax, r.ErrorMin)

	case RedoxSettings:
		return fmt.Sprintf("  Redox Setpoint: %.0f mV (%.2f ppm)\n", r.Setpoint, r.AmperoSetpoint)

	case Thresholds:
		return fmt.Sprintf("  Temp Error Min: %.0f°C, Temp Warning Min: %.0f°C, Salt Warning Min: %.1f g/L, Salt Error Min: %.1f g/L\n",
			r.TempErrorMin, r.TempWarningMin, r.SaltWarningMin, r.SaltErrorMin)

	case AuxState:
		result := fmt.Sprintf("  Electrolysis: %d%%, Boost: %d min, Cover: %d%%", r.ElectrolysisSetpoint, r.BoostMinutes, r.CoverLevel)
		if r.CoverActive {
			result += " (cover closed)"
		}
		if r.FlowSwitch {
			result += ", Flow switch: ON"
		}
		if r.ElectrolysisAlarm != 0 {
			result += fmt.Sprintf(", Alarm: %d", r.ElectrolysisAlarm)
		}
		return result + "\n"
	}

	return fmt.Sprintf("  %+v\n", resp)
}

// FormatMeasurement formats a measurement on one line plus an optional pumps line
func FormatMeasurement(m Measurement) string {
	result := fmt.Sprintf("  pH: %.2f, Redox: %.0f mV, Temp: %.1f°C, Salt: %.1f g/L\n",
		m.PH, m.Redox, m.Temperature, m.Salt)

	if m.Alarm != 0 || m.Warning != 0 || m.AlarmRedox != 0 {
		result += fmt.Sprintf("  Alarm: %d, Warning: %d, Redox Alarm: %d\n", m.Alarm, m.Warning, m.AlarmRedox)
	}

	active := []string{}
	if m.PumpPlusActive {
		active = append(active, "pH+")
	}
	if m.PumpMinusActive {
		active = append(active, "pH-")
	}
	if m.PumpChlorineActive {
		active = append(active, "chlorine")
	}
	if m.FilterRelayActive {
		active = append(active, "filter")
	}
	if len(active) > 0 {
		result += fmt.Sprintf("  Active: %s (type %d)\n", strings.Join(active, ", "), m.RegulatorType)
	}

	return result
}

// FormatHex returns a hex dump of raw bytes
func FormatHex(data []byte) string {
	result := "  Raw: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n       "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
