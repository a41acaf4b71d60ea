// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package delivery relays decoded measurements to a remote sink with bounded
// retries, and reports errors out of band.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aquastat/aquastat/internal/config"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// Sink stores measurements. Post makes exactly one attempt; retry policy
// belongs to Client.
type Sink interface {
	Name() string
	Post(ctx context.Context, m corelec.Measurement) error
	Probe(ctx context.Context) error
	Close() error
}

// StatusError is returned for a non-2xx HTTP response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Open creates the sink selected by cfg.Kind
func Open(ctx context.Context, cfg config.Sink, userAgent string, logger zerolog.Logger) (Sink, error) {
	switch cfg.Kind {
	case config.SinkHTTP:
		return NewHTTPSink(HTTPSinkOptions{
			URL:       cfg.URL,
			HealthURL: cfg.HealthURL,
			Timeout:   cfg.Timeout.Duration,
			UserAgent: userAgent,
		}), nil
	case config.SinkInfluxDB:
		return NewInfluxSink(cfg.InfluxDB, cfg.Timeout.Duration)
	case config.SinkClickHouse:
		return NewClickHouseSink(ctx, cfg.ClickHouse, cfg.Timeout.Duration)
	case config.SinkLog:
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// probeTimeout bounds a health probe regardless of the sink timeout
const probeTimeout = 10 * time.Second
