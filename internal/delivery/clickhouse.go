// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/aquastat/aquastat/internal/config"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// ClickHouseSink inserts one row per measurement
type ClickHouseSink struct {
	conn    driver.Conn
	table   string
	timeout time.Duration
}

// NewClickHouseSink connects, pings, and creates the table if absent
func NewClickHouseSink(ctx context.Context, cfg config.ClickHouse, timeout time.Duration) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "pool_measurements"
	}
	if err := conn.Exec(ctx, createTableQuery(table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &ClickHouseSink{conn: conn, table: table, timeout: timeout}, nil
}

func createTableQuery(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(3),
			ph Float64,
			redox Float64,
			temperature Float64,
			salt Float64,
			alarm UInt8,
			warning UInt8,
			alarm_redox UInt8,
			regulator_type UInt8,
			pump_plus_active Bool,
			pump_minus_active Bool,
			pump_chlore_active Bool,
			filter_relay_active Bool
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMM(timestamp)
	`, table)
}

// Name implements Sink
func (s *ClickHouseSink) Name() string { return "clickhouse" }

// Post implements Sink
func (s *ClickHouseSink) Post(ctx context.Context, m corelec.Measurement) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	p := NewPayload(m)
	err = batch.Append(
		m.Timestamp,
		p.PH,
		p.Redox,
		p.Temperature,
		p.Salt,
		p.Alarm,
		p.Warning,
		p.AlarmRedox,
		p.RegulatorType,
		p.PumpPlusActive,
		p.PumpMinusActive,
		p.PumpChlorineActive,
		p.FilterRelayActive,
	)
	if err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Probe implements Sink
func (s *ClickHouseSink) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return s.conn.Ping(ctx)
}

// Close implements Sink
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
