// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/internal/delivery"
)

var (
	sinkPingTimeout int
	sinkPingCount   int
)

var sinkPingCmd = &cobra.Command{
	Use:   "sink_ping",
	Short: "Test the measurement sink with repeated health probes",
	Long: `Probe the configured sink and report the round-trip time of each probe.

For the HTTP sink this is a GET on the health URL; InfluxDB is asked for its
/health endpoint and ClickHouse is pinged. No measurement is written.

This is useful for verifying:
  - The sink URL and credentials are correct
  - The sink is reachable from this machine

Exit codes:
  0 - All probes successful
  1 - One or more probes failed/timed out
  2 - Sink could not be opened`,
	RunE: runSinkPing,
}

func init() {
	rootCmd.AddCommand(sinkPingCmd)
	sinkPingCmd.Flags().IntVar(&sinkPingTimeout, "timeout", 5, "Timeout in seconds for each probe")
	sinkPingCmd.Flags().IntVar(&sinkPingCount, "count", 3, "Number of probes to send")
}

func runSinkPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	openCtx, cancel := context.WithTimeout(context.Background(), time.Duration(sinkPingTimeout)*time.Second)
	sink, err := delivery.Open(openCtx, cfg.Sink, userAgent(), zerolog.Nop())
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sink error: %v\n", err)
		os.Exit(2)
	}
	defer sink.Close()

	fmt.Printf("Aquastat - Sink Ping Test\n")
	fmt.Printf("Sink: %s\n", sink.Name())
	fmt.Printf("Timeout: %d seconds per probe\n", sinkPingTimeout)
	fmt.Printf("Count: %d probes\n\n", sinkPingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= sinkPingCount; i++ {
		fmt.Printf("Probe %d/%d: ", i, sinkPingCount)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(sinkPingTimeout)*time.Second)
		startTime := time.Now()
		err := sink.Probe(ctx)
		cancel()

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("OK, rtt=%v\n", time.Since(startTime).Round(time.Millisecond))
			successCount++
		}

		// Small delay between probes
		if i < sinkPingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d probes sent, %d succeeded, %.0f%% failed\n",
		sinkPingCount, successCount, float64(failCount)/float64(max(sinkPingCount, 1))*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
