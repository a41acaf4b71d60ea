// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package corelec provides a Go implementation of the CORELEC pool regulator
// serial protocol as carried over the regulator's BLE UART service.
//
// The regulator answers single-character command frames with fixed-length
// 17-byte response frames delimited by a marker byte and protected by an
// XOR checksum. This package provides frame assembly from an incremental
// byte stream, checksum validation, response decoding, command encoding,
// and a CBOR capture format for recording raw traffic.
package corelec

// Protocol framing bytes
const (
	Marker = 0x2A // '*'

	// Command frames carry a fixed header between the marker and the mnemonic.
	CommandHeader0 = 0x52 // 'R'
	CommandHeader1 = 0x3F // '?'
)

// Frame sizes
const (
	FrameSize        = 17
	CommandFrameSize = 6
	ChecksumIndex    = 15
)

// Assembler buffer limits. Once the buffer grows past DefaultHighWater bytes
// it is cut back to its trailing DefaultLowWater bytes.
const (
	DefaultHighWater = 500
	DefaultLowWater  = 100
)

// BLE UART service exposed by the regulator
const (
	UARTServiceUUID        = "0bd51666-e7cb-469b-8e4d-2742f1ba77cc"
	UARTCharacteristicUUID = "e7add780-b042-4876-aae1-112855353cc1"
)

// Mnemonics - response frame types and command characters
const (
	MnemonicMeasures  = 'M' // measurements
	MnemonicRedox     = 'E' // redox setpoint
	MnemonicSetpoints = 'S' // pH setpoint and error thresholds
	MnemonicAux       = 'A' // electrolysis, boost, cover
	MnemonicDefaults  = 'D' // temperature and salt thresholds
	MnemonicB         = 'B'
	MnemonicJ         = 'J'
)

// InitSequence is the ordered command sequence sent after connecting.
var InitSequence = []byte{
	MnemonicMeasures,
	MnemonicRedox,
	MnemonicSetpoints,
	MnemonicAux,
	MnemonicDefaults,
	MnemonicB,
}

// Measurement scale factors
const (
	PHScale          = 100.0
	TemperatureScale = 10.0
	SaltScale        = 10.0
)

// Regulator flag bits (byte 12 of an M frame)
const (
	FlagPumpPlus     = 0x80
	FlagPumpMinus    = 0x40
	FlagPumpChlorine = 0x20
	FlagFilterRelay  = 0x10
	regulatorMask    = 0x0F
)
