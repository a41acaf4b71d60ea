// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import (
	"errors"
	"fmt"
	"time"
)

// ErrChecksumMismatch is returned by ParseFrame when the checksum byte does
// not match the XOR-fold of bytes 1 through 14.
var ErrChecksumMismatch = errors.New("frame checksum mismatch")

// Frame is one validated 17-byte response frame
type Frame struct {
	raw       [FrameSize]byte
	timestamp time.Time
}

// ParseFrame validates a 17-byte slice and returns it as a Frame
func ParseFrame(data []byte) (Frame, error) {
	if len(data) != FrameSize {
		return Frame{}, fmt.Errorf("invalid frame length: %d (want %d)", len(data), FrameSize)
	}
	if data[0] != Marker || data[FrameSize-1] != Marker {
		return Frame{}, fmt.Errorf("missing frame marker: 0x%02X...0x%02X", data[0], data[FrameSize-1])
	}
	if sum := Checksum(data[1:ChecksumIndex]); sum != data[ChecksumIndex] {
		return Frame{}, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, sum, data[ChecksumIndex])
	}

	var f Frame
	copy(f.raw[:], data)
	f.timestamp = time.Now()
	return f, nil
}

// Mnemonic returns the frame type character
func (f Frame) Mnemonic() byte {
	return f.raw[1]
}

// Byte returns the byte at the given frame offset
func (f Frame) Byte(i int) byte {
	return f.raw[i]
}

// Word returns the big-endian 16-bit field starting at offset i
func (f Frame) Word(i int) uint16 {
	return uint16(f.raw[i])<<8 + uint16(f.raw[i+1])
}

// Checksum returns the frame's checksum byte
func (f Frame) Checksum() byte {
	return f.raw[ChecksumIndex]
}

// Bytes returns a copy of the raw frame
func (f Frame) Bytes() []byte {
	out := make([]byte, FrameSize)
	copy(out, f.raw[:])
	return out
}

// Timestamp returns the time the frame was assembled
func (f Frame) Timestamp() time.Time {
	return f.timestamp
}

// BuildFrame assembles a valid response frame from a mnemonic and the 13
// payload bytes at offsets 2-14. Used by tools and tests that need to
// synthesise regulator traffic.
func BuildFrame(mnemonic byte, payload [13]byte) []byte {
	data := make([]byte, FrameSize)
	data[0] = Marker
	data[1] = mnemonic
	copy(data[2:ChecksumIndex], payload[:])
	data[ChecksumIndex] = Checksum(data[1:ChecksumIndex])
	data[FrameSize-1] = Marker
	return data
}
