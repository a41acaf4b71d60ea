// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sink.URL != DefaultSinkURL {
		t.Errorf("Sink.URL = %q", cfg.Sink.URL)
	}
	if cfg.Sink.ErrorURL != "http://localhost:3000/api/error-logs" {
		t.Errorf("Sink.ErrorURL = %q", cfg.Sink.ErrorURL)
	}
	if cfg.Sink.HealthURL != "http://localhost:3000/api/health" {
		t.Errorf("Sink.HealthURL = %q", cfg.Sink.HealthURL)
	}
	if cfg.Monitor.Interval.Duration != 30*time.Second {
		t.Errorf("Monitor.Interval = %v", cfg.Monitor.Interval)
	}
	if cfg.Sink.Timeout.Duration != 15*time.Second || cfg.Sink.MaxRetries != 3 {
		t.Errorf("Sink timeout/retries = %v/%d", cfg.Sink.Timeout, cfg.Sink.MaxRetries)
	}
	if cfg.Schedule.StartHour != 7 || cfg.Schedule.EndHour != 21 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"API_URL":              "https://pool.example.com/v1/measurements",
		"MEASUREMENT_INTERVAL": "60",
		"API_TIMEOUT":          "5",
		"MAX_RETRIES":          "5",
		"SCHEDULE_START_HOUR":  "8",
		"SCHEDULE_END_HOUR":    "20",
		"LOG_LEVEL":            "DEBUG",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sink.ErrorURL != "https://pool.example.com/v1/error-logs" {
		t.Errorf("Sink.ErrorURL = %q", cfg.Sink.ErrorURL)
	}
	if cfg.Monitor.Interval.Duration != time.Minute {
		t.Errorf("Monitor.Interval = %v", cfg.Monitor.Interval)
	}
	if cfg.Sink.Timeout.Duration != 5*time.Second || cfg.Sink.MaxRetries != 5 {
		t.Errorf("Sink timeout/retries = %v/%d", cfg.Sink.Timeout, cfg.Sink.MaxRetries)
	}
	if cfg.Schedule.StartHour != 8 || cfg.Schedule.EndHour != 20 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	if _, err := Load("", envMap(map[string]string{"MAX_RETRIES": "three"})); err == nil {
		t.Error("Expected error for non-numeric MAX_RETRIES")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aquastat.toml")
	data := `
log_level = "warn"
metrics_addr = ":9105"

[schedule]
start_hour = 6
end_hour = 22

[monitor]
interval = "10s"
buffer_high_water = 256
buffer_low_water = 64

[sink]
kind = "influxdb"
url = "http://cloud/api/measurements"

[sink.influxdb]
host = "http://influx:8181"
database = "pool"

[transport]
kind = "websocket"
url = "wss://gateway.local/ws"
username = "admin"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, envMap(map[string]string{"SCHEDULE_END_HOUR": "23"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "warn" || cfg.MetricsAddr != ":9105" {
		t.Errorf("LogLevel/MetricsAddr = %q/%q", cfg.LogLevel, cfg.MetricsAddr)
	}
	if cfg.Schedule.StartHour != 6 || cfg.Schedule.EndHour != 23 {
		t.Errorf("Schedule = %+v (env must win over file)", cfg.Schedule)
	}
	if cfg.Monitor.Interval.Duration != 10*time.Second {
		t.Errorf("Monitor.Interval = %v", cfg.Monitor.Interval)
	}
	if cfg.Monitor.BufferHighWater != 256 || cfg.Monitor.BufferLowWater != 64 {
		t.Errorf("Monitor buffer bounds = %d/%d", cfg.Monitor.BufferHighWater, cfg.Monitor.BufferLowWater)
	}
	// unset keys keep their defaults
	if cfg.Monitor.InitDelay.Duration != 800*time.Millisecond {
		t.Errorf("Monitor.InitDelay = %v", cfg.Monitor.InitDelay)
	}
	if cfg.Sink.InfluxDB.Measurement != "pool_measurements" {
		t.Errorf("InfluxDB.Measurement = %q", cfg.Sink.InfluxDB.Measurement)
	}
	if cfg.Transport.Kind != TransportWebSocket || cfg.Transport.Username != "admin" {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("intervall = \"5s\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path, envMap(nil))
	if err == nil || !strings.Contains(err.Error(), "intervall") {
		t.Errorf("Expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"hour out of range", func(c *Config) { c.Schedule.EndHour = 24 }},
		{"start after end", func(c *Config) { c.Schedule.StartHour = 22 }},
		{"zero interval", func(c *Config) { c.Monitor.Interval.Duration = 0 }},
		{"high water below frame size", func(c *Config) { c.Monitor.BufferHighWater = 10 }},
		{"low water above high water", func(c *Config) { c.Monitor.BufferLowWater = c.Monitor.BufferHighWater + 1 }},
		{"zero low water", func(c *Config) { c.Monitor.BufferLowWater = 0 }},
		{"zero timeout", func(c *Config) { c.Sink.Timeout.Duration = 0 }},
		{"zero retries", func(c *Config) { c.Sink.MaxRetries = 0 }},
		{"unknown sink", func(c *Config) { c.Sink.Kind = "kafka" }},
		{"influx without host", func(c *Config) { c.Sink.Kind = SinkInfluxDB }},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "usb" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestDerive_NonStandardURL(t *testing.T) {
	cfg := Default()
	cfg.Sink.URL = "http://cloud/ingest"
	cfg.Derive()
	if cfg.Sink.ErrorURL != "" || cfg.Sink.HealthURL != "" {
		t.Errorf("Expected no derived URLs, got %q/%q", cfg.Sink.ErrorURL, cfg.Sink.HealthURL)
	}
}
