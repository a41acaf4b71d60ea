// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"

	"github.com/aquastat/aquastat/internal/config"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// InfluxSink writes one point per measurement to InfluxDB v3
type InfluxSink struct {
	client      *influxdb3.Client
	measurement string
	healthURL   string
	timeout     time.Duration
}

// NewInfluxSink creates an InfluxDB sink
func NewInfluxSink(cfg config.InfluxDB, timeout time.Duration) (*InfluxSink, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.Host,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "pool_measurements"
	}

	return &InfluxSink{
		client:      client,
		measurement: measurement,
		healthURL:   strings.TrimRight(cfg.Host, "/") + "/health",
		timeout:     timeout,
	}, nil
}

// Name implements Sink
func (s *InfluxSink) Name() string { return "influxdb" }

// Post implements Sink
func (s *InfluxSink) Post(ctx context.Context, m corelec.Measurement) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	p := NewPayload(m)
	point := influxdb3.NewPoint(
		s.measurement,
		map[string]string{
			"regulator_type": strconv.Itoa(int(m.RegulatorType)),
		},
		p.Fields(),
		m.Timestamp,
	)

	if err := s.client.WritePoints(ctx, []*influxdb3.Point{point}); err != nil {
		return fmt.Errorf("failed to write point: %w", err)
	}
	return nil
}

// Probe implements Sink with a GET on the server health endpoint
func (s *InfluxSink) Probe(ctx context.Context) error {
	return probeURL(ctx, s.healthURL)
}

// Close implements Sink
func (s *InfluxSink) Close() error {
	return s.client.Close()
}
