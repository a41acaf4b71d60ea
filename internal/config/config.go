// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads relay configuration from a TOML file and the
// environment, with defaults for every option.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// Sink kinds
const (
	SinkHTTP       = "http"
	SinkInfluxDB   = "influxdb"
	SinkClickHouse = "clickhouse"
	SinkLog        = "log"
)

// Transport kinds
const (
	TransportSerial    = "serial"
	TransportWebSocket = "websocket"
	TransportReplay    = "replay"
)

// DefaultSinkURL is the measurement endpoint used when none is configured
const DefaultSinkURL = "http://localhost:3000/api/measurements"

// Duration is a time.Duration that decodes from TOML strings like "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete relay configuration
type Config struct {
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	Schedule  Schedule  `toml:"schedule"`
	Monitor   Monitor   `toml:"monitor"`
	Discovery Discovery `toml:"discovery"`
	Sink      Sink      `toml:"sink"`
	Transport Transport `toml:"transport"`
}

// Schedule is the daily operating window [StartHour, EndHour)
type Schedule struct {
	StartHour int `toml:"start_hour"`
	EndHour   int `toml:"end_hour"`
}

// Monitor holds the monitoring loop timings
type Monitor struct {
	Interval       Duration `toml:"interval"`
	HealthInterval Duration `toml:"health_interval"`
	InitDelay      Duration `toml:"init_delay"`
	StaleAfter     Duration `toml:"stale_after"`

	// assembler buffer bounds, trimmed to BufferLowWater past BufferHighWater
	BufferHighWater int `toml:"buffer_high_water"`
	BufferLowWater  int `toml:"buffer_low_water"`
}

// Discovery holds device discovery and connection settings
type Discovery struct {
	Names           []string `toml:"names"`
	FuzzyTokens     []string `toml:"fuzzy_tokens"`
	ExactTimeout    Duration `toml:"exact_timeout"`
	FuzzyTimeout    Duration `toml:"fuzzy_timeout"`
	ConnectAttempts int      `toml:"connect_attempts"`
}

// Sink selects and configures the measurement destination
type Sink struct {
	Kind        string   `toml:"kind"`
	URL         string   `toml:"url"`
	ErrorURL    string   `toml:"error_url"`
	HealthURL   string   `toml:"health_url"`
	Timeout     Duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"`
	BackoffUnit Duration `toml:"backoff_unit"`

	InfluxDB   InfluxDB   `toml:"influxdb"`
	ClickHouse ClickHouse `toml:"clickhouse"`
}

// InfluxDB configures the InfluxDB v3 sink
type InfluxDB struct {
	Host        string `toml:"host"`
	Token       string `toml:"token"`
	Database    string `toml:"database"`
	Measurement string `toml:"measurement"`
}

// ClickHouse configures the ClickHouse sink
type ClickHouse struct {
	Addr     string `toml:"addr"`
	Database string `toml:"database"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Table    string `toml:"table"`
}

// Transport selects how the regulator link is reached
type Transport struct {
	Kind        string  `toml:"kind"`
	Port        string  `toml:"port"`
	Baud        int     `toml:"baud"`
	URL         string  `toml:"url"`
	Username    string  `toml:"username"`
	NoSSLVerify bool    `toml:"no_ssl_verify"`
	ReplayFile  string  `toml:"replay_file"`
	ReplaySpeed float64 `toml:"replay_speed"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		LogLevel: "info",
		Schedule: Schedule{StartHour: 7, EndHour: 21},
		Monitor: Monitor{
			Interval:       Duration{30 * time.Second},
			HealthInterval: Duration{5 * time.Minute},
			InitDelay:      Duration{800 * time.Millisecond},
			StaleAfter:     Duration{5 * time.Minute},

			BufferHighWater: corelec.DefaultHighWater,
			BufferLowWater:  corelec.DefaultLowWater,
		},
		Discovery: Discovery{
			Names:           []string{"CORELEC Regulateur", "REGUL."},
			FuzzyTokens:     []string{"corelec", "regul"},
			ExactTimeout:    Duration{15 * time.Second},
			FuzzyTimeout:    Duration{30 * time.Second},
			ConnectAttempts: 3,
		},
		Sink: Sink{
			Kind:        SinkHTTP,
			URL:         DefaultSinkURL,
			Timeout:     Duration{15 * time.Second},
			MaxRetries:  3,
			BackoffUnit: Duration{time.Second},
			InfluxDB:    InfluxDB{Measurement: "pool_measurements"},
			ClickHouse:  ClickHouse{Database: "default", Table: "pool_measurements"},
		},
		Transport: Transport{
			Kind:        TransportSerial,
			Baud:        115200,
			ReplaySpeed: 1,
		},
	}
}

// Load reads the optional TOML file at path over the defaults, then applies
// environment overrides. Derived URLs are filled in last.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	cfg.Derive()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("API_URL"); v != "" {
		c.Sink.URL = v
	}
	if v := getenv("ERROR_LOG_URL"); v != "" {
		c.Sink.ErrorURL = v
	}
	if v := getenv("HEALTH_URL"); v != "" {
		c.Sink.HealthURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	seconds := []struct {
		key string
		dst *Duration
	}{
		{"MEASUREMENT_INTERVAL", &c.Monitor.Interval},
		{"API_TIMEOUT", &c.Sink.Timeout},
	}
	for _, s := range seconds {
		if v := getenv(s.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", s.key, err)
			}
			s.dst.Duration = time.Duration(n) * time.Second
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RETRIES", &c.Sink.MaxRetries},
		{"SCHEDULE_START_HOUR", &c.Schedule.StartHour},
		{"SCHEDULE_END_HOUR", &c.Schedule.EndHour},
	}
	for _, s := range ints {
		if v := getenv(s.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", s.key, err)
			}
			*s.dst = n
		}
	}

	return nil
}

// Derive fills the error and health URLs from the measurement URL when unset
func (c *Config) Derive() {
	if c.Sink.ErrorURL == "" {
		c.Sink.ErrorURL = siblingURL(c.Sink.URL, "/error-logs")
	}
	if c.Sink.HealthURL == "" {
		c.Sink.HealthURL = siblingURL(c.Sink.URL, "/health")
	}
}

func siblingURL(measurementURL, suffix string) string {
	if measurementURL == "" {
		return ""
	}
	if base, ok := strings.CutSuffix(strings.TrimRight(measurementURL, "/"), "/measurements"); ok {
		return base + suffix
	}
	return ""
}

// Validate checks the configuration for values the relay cannot run with
func (c Config) Validate() error {
	if c.Schedule.StartHour < 0 || c.Schedule.StartHour > 23 || c.Schedule.EndHour < 0 || c.Schedule.EndHour > 23 {
		return fmt.Errorf("schedule hours must be within 0-23 (got %d-%d)", c.Schedule.StartHour, c.Schedule.EndHour)
	}
	if c.Schedule.StartHour >= c.Schedule.EndHour {
		return fmt.Errorf("schedule start_hour %d must be before end_hour %d", c.Schedule.StartHour, c.Schedule.EndHour)
	}
	if c.Monitor.Interval.Duration <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	if c.Monitor.HealthInterval.Duration <= 0 {
		return fmt.Errorf("monitor health_interval must be positive")
	}
	if c.Monitor.BufferHighWater < corelec.FrameSize {
		return fmt.Errorf("monitor buffer_high_water must be at least %d (got %d)", corelec.FrameSize, c.Monitor.BufferHighWater)
	}
	if c.Monitor.BufferLowWater <= 0 || c.Monitor.BufferLowWater > c.Monitor.BufferHighWater {
		return fmt.Errorf("monitor buffer_low_water must be within 1-%d (got %d)", c.Monitor.BufferHighWater, c.Monitor.BufferLowWater)
	}
	if c.Sink.Timeout.Duration <= 0 {
		return fmt.Errorf("sink timeout must be positive")
	}
	if c.Sink.MaxRetries <= 0 {
		return fmt.Errorf("sink max_retries must be positive")
	}
	if c.Discovery.ConnectAttempts <= 0 {
		return fmt.Errorf("discovery connect_attempts must be positive")
	}

	switch c.Sink.Kind {
	case SinkHTTP:
		if c.Sink.URL == "" {
			return fmt.Errorf("sink url is required for kind %q", c.Sink.Kind)
		}
	case SinkInfluxDB:
		if c.Sink.InfluxDB.Host == "" || c.Sink.InfluxDB.Database == "" {
			return fmt.Errorf("sink influxdb host and database are required")
		}
	case SinkClickHouse:
		if c.Sink.ClickHouse.Addr == "" {
			return fmt.Errorf("sink clickhouse addr is required")
		}
	case SinkLog:
	default:
		return fmt.Errorf("unknown sink kind %q", c.Sink.Kind)
	}

	switch c.Transport.Kind {
	case TransportSerial, TransportWebSocket, TransportReplay:
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}

	return nil
}
