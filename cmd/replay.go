// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/pkg/corelec"
)

var replayShowAll bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Decode a capture file and print its measurements",
	Long: `Run the frame assembler and decoders over a CBOR capture written by
raw_log --record.

By default only measurements and their anomalies are printed. Use --show-all to
print every frame. A statistics summary follows.

To drive the full relay from a capture instead, use --replay with run or watch.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayShowAll, "show-all", false, "Print every frame, not only measurements")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := replayCapture(f, cmd.OutOrStdout(), replayShowAll)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s", stats.String())
	return nil
}

// replayCapture decodes every record of a capture stream and writes the
// frames of interest to out
func replayCapture(r io.Reader, out io.Writer, showAll bool) (*corelec.Statistics, error) {
	reader := corelec.NewCaptureReader(r)
	assembler := corelec.NewAssembler()
	stats := corelec.NewStatistics()

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("capture read failed: %w", err)
		}

		stats.RecordChunk(len(rec.Data))
		for _, frame := range assembler.IngestAll(rec.Data) {
			resp, decodeErr := corelec.Decode(frame)
			stats.RecordResponse(resp, decodeErr)

			m, ok := resp.(corelec.Measurement)
			if !ok {
				if showAll {
					fmt.Fprint(out, corelec.FormatFrame(frame))
				}
				continue
			}

			fmt.Fprintf(out, "[%s] %s\n", rec.Time().Format("15:04:05.000"), corelec.FormatMnemonic(frame.Mnemonic()))
			fmt.Fprint(out, corelec.FormatMeasurement(m))
			anomalies := corelec.ValidateMeasurement(m)
			for _, a := range anomalies {
				fmt.Fprintf(out, "  ANOMALY: %s\n", a.Message)
			}
			stats.RecordAnomalies(anomalies)
		}
		stats.SyncAssembler(assembler)
	}

	return stats, nil
}
