// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// Serial bridge flags
	portName string
	baudRate int

	// Gateway flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Capture replay flags
	replayFile  string
	replaySpeed float64
)

var rootCmd = &cobra.Command{
	Use:   "aquastat",
	Short: "CORELEC pool regulator telemetry relay",
	Long: `Aquastat - Relays telemetry from a CORELEC pool regulator to a measurement sink.

The regulator is reached through its BLE UART service. Measurements are polled
on a fixed interval during a daily operating window, decoded, and delivered to
an HTTP API, InfluxDB, ClickHouse, or the log.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]   (BLE-UART bridge dongle)
  WebSocket: --url ws://host/path [--username user] (remote BLE gateway)
  Replay:    --replay capture.cbor [--replay-speed 1]

For gateway authentication, the password is read from the GATEWAY_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "0.4.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")

	// Serial bridge flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the BLE-UART bridge")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")

	// Gateway flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "BLE gateway WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Capture replay flags
	rootCmd.PersistentFlags().StringVar(&replayFile, "replay", "", "Play back a capture file instead of a live link")
	rootCmd.PersistentFlags().Float64Var(&replaySpeed, "replay-speed", 0, "Replay speed factor (0 = as fast as possible)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// userAgent identifies the relay to sinks
func userAgent() string {
	return "aquastat/" + rootCmd.Version
}
