// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import (
	"fmt"
	"time"
)

// Statistics tracks frame and delivery counters for a monitoring run
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	BytesReceived    uint64
	Frames           uint64
	Measurements     uint64
	SettingsFrames   uint64
	UnknownMnemonics uint64
	ChecksumRejects  uint64
	TrimmedBytes     uint64
	Anomalies        uint64
	DeliveriesOK     uint64
	DeliveriesFailed uint64

	// Rates (calculated)
	FrameRate float64 // frames/min
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordChunk counts raw transport bytes
func (s *Statistics) RecordChunk(n int) {
	s.BytesReceived += uint64(n)
	s.LastUpdateTime = time.Now()
}

// RecordResponse counts a decoded frame by kind
func (s *Statistics) RecordResponse(resp Response, decodeErr error) {
	s.Frames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		s.UnknownMnemonics++
		return
	}
	if _, ok := resp.(Measurement); ok {
		s.Measurements++
		return
	}
	s.SettingsFrames++
}

// RecordAnomalies counts validation errors for one measurement
func (s *Statistics) RecordAnomalies(errs []ValidationError) {
	s.Anomalies += uint64(len(errs))
}

// RecordDelivery counts a delivery outcome
func (s *Statistics) RecordDelivery(ok bool) {
	if ok {
		s.DeliveriesOK++
	} else {
		s.DeliveriesFailed++
	}
}

// SyncAssembler copies the assembler's rejection and trim counters
func (s *Statistics) SyncAssembler(a *Assembler) {
	s.ChecksumRejects = a.ChecksumRejects()
	s.TrimmedBytes = a.TrimmedBytes()
}

// CalculateRates calculates the frame rate
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Minutes()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	result += fmt.Sprintf("Frames:          %8d\n", s.Frames)
	result += fmt.Sprintf("  Measurements:  %8d\n", s.Measurements)
	result += fmt.Sprintf("  Settings:      %8d\n", s.SettingsFrames)

	if s.UnknownMnemonics > 0 {
		result += fmt.Sprintf("  Unknown:       %8d\n", s.UnknownMnemonics)
	}
	if s.ChecksumRejects > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumRejects)
	}
	if s.TrimmedBytes > 0 {
		result += fmt.Sprintf("Trimmed Bytes:   %8d\n", s.TrimmedBytes)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}
	if s.DeliveriesOK > 0 || s.DeliveriesFailed > 0 {
		result += fmt.Sprintf("Delivered:       %8d (failed %d)\n", s.DeliveriesOK, s.DeliveriesFailed)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/min\n", s.FrameRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
