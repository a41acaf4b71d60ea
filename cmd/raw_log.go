// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/internal/transport"
	"github.com/aquastat/aquastat/pkg/corelec"
)

var (
	rawLogRecord string
	rawLogPoll   time.Duration
	rawLogInit   bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display regulator frames in human-readable format",
	Long: `Connect to the regulator and decode every frame as it arrives.

Each frame is shown with timestamp, type, checksum and decoded payload. Frames
without a decoder are shown as a hex dump. Nothing is delivered to the sink.

With --record, every raw notification chunk is also written to a CBOR capture
file that can be played back with --replay or the replay command.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Write raw chunks to a CBOR capture file")
	rawLogCmd.Flags().DurationVar(&rawLogPoll, "poll", 30*time.Second, "Measurement poll interval (0 disables polling)")
	rawLogCmd.Flags().BoolVar(&rawLogInit, "init", true, "Send the initialization sequence after connecting")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, link, connInfo, err := openLink(ctx, cfg)
	if err != nil {
		return err
	}
	defer t.Close()
	defer link.Disconnect()

	var recorder *corelec.CaptureWriter
	if rawLogRecord != "" {
		f, err := os.Create(rawLogRecord)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		recorder = corelec.NewCaptureWriter(f)
	}

	fmt.Printf("Aquastat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recorder != nil {
		fmt.Printf("Recording: %s\n", rawLogRecord)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	chunks, err := subscribe(ctx, link)
	if err != nil {
		return err
	}

	if rawLogInit {
		for _, c := range corelec.NewInitCommands() {
			if err := link.Write(ctx, corelec.UARTCharacteristicUUID, c); err != nil {
				return fmt.Errorf("init command '%c' failed: %w", c[3], err)
			}
			time.Sleep(cfg.Monitor.InitDelay.Duration)
		}
	}

	var pollC <-chan time.Time
	if rawLogPoll > 0 {
		ticker := time.NewTicker(rawLogPoll)
		defer ticker.Stop()
		pollC = ticker.C
	}
	linkCheck := time.NewTicker(time.Second)
	defer linkCheck.Stop()

	assembler := corelec.NewAssembler()
	stats := corelec.NewStatistics()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%s", stats.String())
			return nil

		case chunk := <-chunks:
			stats.RecordChunk(len(chunk))
			if recorder != nil {
				if err := recorder.Write(time.Now(), chunk); err != nil {
					log.Printf("Capture write error: %v", err)
				}
			}
			for _, f := range assembler.IngestAll(chunk) {
				resp, err := corelec.Decode(f)
				stats.RecordResponse(resp, err)
				fmt.Print(corelec.FormatFrame(f))
			}
			stats.SyncAssembler(assembler)

		case <-pollC:
			if err := link.Write(ctx, corelec.UARTCharacteristicUUID, corelec.NewPollCommand()); err != nil {
				log.Printf("Poll failed: %v", err)
			}

		case <-linkCheck.C:
			if !link.IsConnected() {
				log.Printf("Connection closed")
				fmt.Printf("\n%s", stats.String())
				return nil
			}
		}
	}
}

// subscribe starts notifications and hands each chunk over on a channel
func subscribe(ctx context.Context, link transport.Link) (<-chan []byte, error) {
	chunks := make(chan []byte, 256)
	err := link.StartNotify(ctx, corelec.UARTCharacteristicUUID, func(b []byte) {
		chunk := append([]byte(nil), b...)
		select {
		case chunks <- chunk:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start notifications: %w", err)
	}
	return chunks, nil
}
