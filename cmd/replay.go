// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/capture"
	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a capture file",
	Long: `Decode a capture file written by raw_log --capture or host --capture.

Frames are printed in capture order with the time they were recorded and the
side that sent them, followed by a statistics summary per direction.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	return replay(f, os.Stdout)
}

func replay(r io.Reader, out io.Writer) error {
	stats := map[tasmota.Direction]*tasmota.Statistics{
		tasmota.FromModule: tasmota.NewStatistics(),
		tasmota.FromHost:   tasmota.NewStatistics(),
	}

	err := capture.Replay(capture.NewReader(r), func(rec capture.Record, frame *tasmota.Frame, err error) {
		stats[rec.Direction].Update(err)
		if err != nil {
			fmt.Fprintf(out, "%-6s [ERROR] %v\n", rec.Direction, err)
			return
		}
		if rec.Direction == tasmota.FromHost {
			fmt.Fprintf(out, "%-6s %s\n", rec.Direction, tasmota.FormatRequest(frame))
			return
		}
		fmt.Fprintf(out, "%-6s %s\n", rec.Direction, tasmota.FormatFrame(frame))
	})
	if err != nil {
		return err
	}

	for _, dir := range []tasmota.Direction{tasmota.FromHost, tasmota.FromModule} {
		if stats[dir].Snapshot().TotalFrames == 0 {
			continue
		}
		fmt.Fprintf(out, "\nFrom %s:\n%s", dir, stats[dir])
	}
	return nil
}
