// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/pkg/corelec"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the link by waiting for a valid regulator frame",
	Long: `Connect to the regulator, send one measurement poll and wait for a valid frame.

Invalid bytes are ignored; only a complete frame that passes the checksum
counts.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking a bridge dongle or gateway before running the relay.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t, link, connInfo, err := openLink(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()
	defer link.Disconnect()

	fmt.Printf("Aquastat - Link Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid regulator frame...\n\n")

	chunks, err := subscribe(ctx, link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	if err := link.Write(ctx, corelec.UARTCharacteristicUUID, corelec.NewPollCommand()); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	assembler := corelec.NewAssembler()
	received := 0
	timeout := time.After(time.Duration(probeTimeout) * time.Second)
	linkCheck := time.NewTicker(500 * time.Millisecond)
	defer linkCheck.Stop()

	for {
		select {
		case chunk := <-chunks:
			received += len(chunk)
			f, ok := assembler.Ingest(chunk)
			if !ok {
				continue
			}

			if skipped := received - assembler.Buffered() - corelec.FrameSize; skipped > 0 {
				fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
			}
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Type: %s ('%c')\n", corelec.FormatMnemonic(f.Mnemonic()), f.Mnemonic())
			fmt.Printf("  Checksum: 0x%02X\n", f.Checksum())
			if resp, err := corelec.Decode(f); err == nil {
				fmt.Print(corelec.FormatResponse(resp))
			}
			os.Exit(0)

		case <-linkCheck.C:
			if !link.IsConnected() {
				fmt.Fprintf(os.Stderr, "Read error: link closed\n")
				os.Exit(2)
			}

		case <-timeout:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
			os.Exit(1)
		}
	}
}
