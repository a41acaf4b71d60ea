// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquastat/aquastat/internal/metrics"
	"github.com/aquastat/aquastat/internal/transport"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// monitor consumes notification chunks and polls the regulator until the
// link fails or the operating window closes.
func (c *Controller) monitor(ctx context.Context, link transport.Link, chunks <-chan []byte) error {
	c.logger.Info().Dur("interval", c.opts.PollInterval).Msg("monitoring started")

	poll := time.NewTicker(c.opts.PollInterval)
	defer poll.Stop()
	health := time.NewTicker(c.opts.HealthInterval)
	defer health.Stop()
	window := time.NewTicker(min(c.opts.WindowCheck, c.opts.PollInterval))
	defer window.Stop()

	if err := c.healthCheck(ctx, link); err != nil {
		return err
	}
	if err := c.poll(ctx, link); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk := <-chunks:
			c.handleChunk(ctx, chunk)

		case <-window.C:
			if !c.opts.Gate.InWindow(c.opts.Now()) {
				c.logger.Info().Msg("operating window closed")
				return nil
			}

		case <-poll.C:
			if !c.opts.Gate.InWindow(c.opts.Now()) {
				return nil
			}
			c.checkStale()
			if err := c.poll(ctx, link); err != nil {
				return err
			}

		case <-health.C:
			if err := c.healthCheck(ctx, link); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) poll(ctx context.Context, link transport.Link) error {
	if !link.IsConnected() {
		return fmt.Errorf("%w: link lost", ErrTransportDisconnected)
	}
	return c.write(ctx, link, corelec.NewPollCommand())
}

// healthCheck probes the sink and the link. Only the link check can fail the
// session.
func (c *Controller) healthCheck(ctx context.Context, link transport.Link) error {
	if err := c.delivery.Probe(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("sink health check failed")
	} else {
		c.logger.Debug().Msg("sink reachable")
	}

	if !link.IsConnected() {
		c.logger.Warn().Msg("regulator link lost")
		return fmt.Errorf("%w: health check", ErrTransportDisconnected)
	}
	return nil
}

func (c *Controller) checkStale() {
	c.mu.Lock()
	last := c.session.LastSuccess
	c.mu.Unlock()

	if last.IsZero() {
		return
	}
	if since := c.opts.Now().Sub(last); since > c.opts.StaleAfter {
		c.logger.Warn().Dur("since", since).Msg("no successful delivery recently")
	}
}

// handleChunk runs one notification chunk through the assembler and handles
// every frame it completes
func (c *Controller) handleChunk(ctx context.Context, chunk []byte) {
	frames := c.assembler.IngestAll(chunk)

	c.mu.Lock()
	c.stats.RecordChunk(len(chunk))
	c.stats.SyncAssembler(c.assembler)
	c.mu.Unlock()

	if rejects := c.assembler.ChecksumRejects(); rejects > c.lastRejects {
		metrics.AddChecksumRejects(rejects - c.lastRejects)
		c.logger.Debug().Uint64("total", rejects).Msg("checksum mismatch, candidate dropped")
		c.lastRejects = rejects
	}

	for _, f := range frames {
		metrics.RecordFrame(f.Mnemonic())
		resp, err := corelec.Decode(f)

		c.mu.Lock()
		c.stats.RecordResponse(resp, err)
		c.mu.Unlock()

		if err != nil {
			c.logger.Debug().Err(err).Msg("frame ignored")
			continue
		}

		switch r := resp.(type) {
		case corelec.Measurement:
			c.handleMeasurement(ctx, r)
		default:
			c.mu.Lock()
			c.settings[r.Mnemonic()] = r
			c.mu.Unlock()
			c.logger.Debug().Str("frame", corelec.FormatMnemonic(r.Mnemonic())).Msg("settings received")
			c.emit(Event{Kind: EventSettings, Settings: r})
		}
	}
}

func (c *Controller) handleMeasurement(ctx context.Context, m corelec.Measurement) {
	anomalies := corelec.ValidateMeasurement(m)
	for _, a := range anomalies {
		metrics.RecordAnomaly(a.Type.String())
		c.logger.Warn().Str("anomaly", a.Type.String()).Msg(a.Message)
	}

	c.mu.Lock()
	c.stats.RecordAnomalies(anomalies)
	c.mu.Unlock()
	c.emit(Event{Kind: EventMeasurement, Measurement: m, Anomalies: anomalies})

	err := c.delivery.Send(ctx, m, c.tracker())

	c.mu.Lock()
	c.stats.RecordDelivery(err == nil)
	failed := c.session.FailedAttempts
	id := c.session.ID
	c.mu.Unlock()

	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}

	c.logger.Error().Err(err).Int("consecutive_failures", failed).Msg("measurement dropped")
	c.emit(Event{Kind: EventDeliveryFailed, Measurement: m, Err: err})
	c.reporter.Report(ctx, ErrorKind(err), err.Error(), map[string]any{
		"session_id":           id,
		"consecutive_failures": failed,
	})
}

// tracker adapts the controller's session to delivery.Tracker under the lock
func (c *Controller) tracker() *sessionTracker {
	return &sessionTracker{c: c}
}

type sessionTracker struct {
	c *Controller
}

func (t *sessionTracker) DeliverySucceeded(at time.Time) {
	t.c.mu.Lock()
	t.c.session.DeliverySucceeded(at)
	t.c.mu.Unlock()
}

func (t *sessionTracker) DeliveryFailed() {
	t.c.mu.Lock()
	t.c.session.DeliveryFailed()
	t.c.mu.Unlock()
}
