// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

// AssemblerOptions configures the assembler buffer bounds
type AssemblerOptions struct {
	HighWater int // buffer length that triggers a trim
	LowWater  int // bytes kept after a trim
}

func (o AssemblerOptions) normalize() AssemblerOptions {
	if o.HighWater <= 0 {
		o.HighWater = DefaultHighWater
	}
	if o.HighWater < FrameSize {
		o.HighWater = FrameSize
	}
	if o.LowWater <= 0 {
		o.LowWater = min(DefaultLowWater, o.HighWater)
	}
	if o.LowWater > o.HighWater {
		o.LowWater = o.HighWater
	}
	return o
}

// Assembler accumulates transport chunks and extracts checksum-valid frames.
//
// Each Ingest call performs a single scan and returns at most one frame.
// When a chunk may carry several frames, callers keep calling Next until it
// reports no frame.
type Assembler struct {
	buffer    []byte
	highWater int
	lowWater  int

	checksumRejects uint64
	trimmedBytes    uint64
}

// NewAssembler creates an assembler with the default buffer bounds
func NewAssembler() *Assembler {
	return NewAssemblerWithOptions(AssemblerOptions{})
}

// NewAssemblerWithOptions creates an assembler with explicit buffer bounds.
// Zero values fall back to DefaultHighWater and DefaultLowWater. HighWater is
// raised to FrameSize when smaller, and LowWater never exceeds HighWater.
func NewAssemblerWithOptions(opts AssemblerOptions) *Assembler {
	opts = opts.normalize()
	return &Assembler{
		buffer:    make([]byte, 0, opts.HighWater+FrameSize),
		highWater: opts.HighWater,
		lowWater:  opts.LowWater,
	}
}

// Ingest appends chunk to the buffer and scans once for a complete frame
func (a *Assembler) Ingest(chunk []byte) (Frame, bool) {
	a.buffer = append(a.buffer, chunk...)

	frame, ok := a.scan()

	if len(a.buffer) > a.highWater {
		cut := len(a.buffer) - a.lowWater
		a.trimmedBytes += uint64(cut)
		a.buffer = append(a.buffer[:0], a.buffer[cut:]...)
	}

	return frame, ok
}

// Next scans the buffered bytes again without adding input
func (a *Assembler) Next() (Frame, bool) {
	return a.Ingest(nil)
}

// IngestAll appends chunk and extracts every complete frame currently buffered
func (a *Assembler) IngestAll(chunk []byte) []Frame {
	var frames []Frame
	frame, ok := a.Ingest(chunk)
	for ok {
		frames = append(frames, frame)
		frame, ok = a.Next()
	}
	return frames
}

// scan looks for the first marker pair 16 bytes apart whose checksum matches.
// On success the frame and any garbage before it are removed from the buffer.
func (a *Assembler) scan() (Frame, bool) {
	for i := 0; i+FrameSize <= len(a.buffer); i++ {
		if a.buffer[i] != Marker || a.buffer[i+FrameSize-1] != Marker {
			continue
		}
		if Checksum(a.buffer[i+1:i+ChecksumIndex]) != a.buffer[i+ChecksumIndex] {
			a.checksumRejects++
			continue
		}

		frame, err := ParseFrame(a.buffer[i : i+FrameSize])
		if err != nil {
			continue
		}
		a.buffer = append(a.buffer[:0], a.buffer[i+FrameSize:]...)
		return frame, true
	}
	return Frame{}, false
}

// Buffered returns the number of unconsumed bytes
func (a *Assembler) Buffered() int {
	return len(a.buffer)
}

// ChecksumRejects returns how many marker-delimited candidates failed the checksum
func (a *Assembler) ChecksumRejects() uint64 {
	return a.checksumRejects
}

// TrimmedBytes returns how many bytes were discarded by overflow trims
func (a *Assembler) TrimmedBytes() uint64 {
	return a.trimmedBytes
}

// Reset discards all buffered bytes
func (a *Assembler) Reset() {
	a.buffer = a.buffer[:0]
}
