// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aquastat/aquastat/internal/metrics"
	"github.com/aquastat/aquastat/internal/schedule"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// ErrDeliveryFailed is returned once every attempt for a measurement failed.
// The measurement is dropped.
var ErrDeliveryFailed = errors.New("delivery failed")

// Tracker records delivery outcomes on the owning session
type Tracker interface {
	DeliverySucceeded(at time.Time)
	DeliveryFailed()
}

// ClientOptions configures a Client
type ClientOptions struct {
	MaxAttempts int
	BackoffUnit time.Duration // delay before attempt n+1 is BackoffUnit * 2^n
	Sleep       schedule.SleepFunc
	Now         func() time.Time
}

// Client delivers measurements through a Sink with bounded retries
type Client struct {
	sink   Sink
	opts   ClientOptions
	logger zerolog.Logger
}

// NewClient creates a delivery client
func NewClient(sink Sink, opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = schedule.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{sink: sink, opts: opts, logger: logger}
}

// Sink returns the underlying sink
func (c *Client) Sink() Sink {
	return c.sink
}

// Probe checks that the sink is reachable
func (c *Client) Probe(ctx context.Context) error {
	return c.sink.Probe(ctx)
}

// Send posts m, retrying with exponential backoff. On success the tracker's
// failure count is reset; after the last failed attempt it is incremented
// and ErrDeliveryFailed is returned.
func (c *Client) Send(ctx context.Context, m corelec.Measurement, tr Tracker) error {
	start := c.opts.Now()
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		err := c.sink.Post(ctx, m)
		if err == nil {
			at := c.opts.Now()
			if tr != nil {
				tr.DeliverySucceeded(at)
			}
			metrics.RecordDelivery(c.sink.Name(), true, at.Sub(start))
			c.logger.Info().
				Float64("ph", round(m.PH, 2)).
				Float64("temperature", round(m.Temperature, 1)).
				Float64("salt", round(m.Salt, 1)).
				Float64("redox", round(m.Redox, 0)).
				Msg("measurement delivered")
			return nil
		}
		lastErr = err

		c.logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.opts.MaxAttempts).
			Msg("delivery attempt failed")

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt == c.opts.MaxAttempts-1 {
			break
		}
		if err := c.opts.Sleep(ctx, c.opts.BackoffUnit<<attempt); err != nil {
			return err
		}
	}

	if tr != nil {
		tr.DeliveryFailed()
	}
	metrics.RecordDelivery(c.sink.Name(), false, c.opts.Now().Sub(start))
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, c.opts.MaxAttempts, lastErr)
}
