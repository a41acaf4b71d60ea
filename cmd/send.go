// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/pkg/corelec"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send a single command frame to the regulator",
	Long: `Encode a one-character command, write it to the regulator and print the
frames received until --wait elapses.

Known commands:
  M - measurements
  E - redox settings
  S - pH settings
  A - electrolysis, boost and cover state
  D - temperature and salt thresholds
  B, J - undocumented frames

Other characters are sent unchecked.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 3*time.Second, "How long to print responses")
}

func parseCommandArg(arg string) (byte, error) {
	if len(arg) != 1 {
		return 0, fmt.Errorf("command must be a single character, got %q", arg)
	}
	return arg[0], nil
}

func runSend(cmd *cobra.Command, args []string) error {
	mnemonic, err := parseCommandArg(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendWait+cfg.Discovery.FuzzyTimeout.Duration+10*time.Second)
	defer cancel()

	t, link, connInfo, err := openLink(ctx, cfg)
	if err != nil {
		return err
	}
	defer t.Close()
	defer link.Disconnect()

	chunks, err := subscribe(ctx, link)
	if err != nil {
		return err
	}

	frame := corelec.EncodeCommand(mnemonic)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sending %s ('%c'):\n%s\n", corelec.FormatMnemonic(mnemonic), mnemonic, corelec.FormatHex(frame))

	if err := link.Write(ctx, corelec.UARTCharacteristicUUID, frame); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	assembler := corelec.NewAssembler()
	deadline := time.After(sendWait)
	for {
		select {
		case chunk := <-chunks:
			for _, f := range assembler.IngestAll(chunk) {
				fmt.Print(corelec.FormatFrame(f))
			}
		case <-deadline:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
