// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// LogSink logs measurements instead of storing them
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name implements Sink
func (s *LogSink) Name() string { return "log" }

// Post implements Sink
func (s *LogSink) Post(_ context.Context, m corelec.Measurement) error {
	p := NewPayload(m)
	s.logger.Info().
		Float64("ph", p.PH).
		Float64("redox", p.Redox).
		Float64("temperature", p.Temperature).
		Float64("salt", p.Salt).
		Uint8("alarm", p.Alarm).
		Uint8("warning", p.Warning).
		Msg("measurement")
	return nil
}

// Probe implements Sink
func (s *LogSink) Probe(context.Context) error { return nil }

// Close implements Sink
func (s *LogSink) Close() error { return nil }
