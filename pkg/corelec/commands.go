// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

// Command frames ask the regulator for one response frame:
//
//	[Marker, 'R', '?', mnemonic, checksum, Marker]
//
// The checksum covers the first four bytes, marker included. The mnemonic
// is not validated; sending only known mnemonics is the caller's job.

// EncodeCommand builds the 6-byte command frame for a mnemonic
func EncodeCommand(mnemonic byte) []byte {
	frame := []byte{Marker, CommandHeader0, CommandHeader1, mnemonic, 0x00, Marker}
	frame[4] = Checksum(frame[:4])
	return frame
}

// NewPollCommand creates the measurement poll command (M)
func NewPollCommand() []byte {
	return EncodeCommand(MnemonicMeasures)
}

// NewInitCommands returns the encoded initialisation sequence in send order
func NewInitCommands() [][]byte {
	frames := make([][]byte, 0, len(InitSequence))
	for _, m := range InitSequence {
		frames = append(frames, EncodeCommand(m))
	}
	return frames
}
