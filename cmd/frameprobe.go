// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	frameProbeTimeout int
	frameProbeQuery   bool
)

var frameProbeCmd = &cobra.Command{
	Use:   "frame_probe",
	Short: "Test connection by waiting for a valid TasmotaClient frame",
	Long: `Wait for a valid frame from the module until timeout.

This command connects to a serial port or WebSocket and waits for any complete,
valid module frame. Noise and malformed frames are skipped. With --query (the
default) a FEATURES request is sent first so an idle module answers.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runFrameProbe,
}

func init() {
	rootCmd.AddCommand(frameProbeCmd)
	frameProbeCmd.Flags().IntVar(&frameProbeTimeout, "wait", 10, "Seconds to wait for a frame")
	frameProbeCmd.Flags().BoolVar(&frameProbeQuery, "query", true, "Send a FEATURES request first")
}

func runFrameProbe(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Tasmolink - Frame Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameProbeTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	code := probe(tasmota.NewHost(conn, linkOptions()...), time.Duration(frameProbeTimeout)*time.Second)
	conn.Close()
	os.Exit(code)
	return nil
}

// probe returns the process exit code for the first frame outcome
func probe(host *tasmota.Host, timeout time.Duration) int {
	if frameProbeQuery {
		if err := host.Request(tasmota.CmdFeatures); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			return 2
		}
	}

	deadline := time.Now().Add(timeout)
	invalid := 0
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %s\n", timeout)
			return 1
		}

		frame, err := host.ReadFrame(remaining)
		switch {
		case err == nil:
			if invalid > 0 {
				fmt.Printf("(skipped %d malformed frames before sync)\n", invalid)
			}
			if noise := host.Stats().Snapshot().NoiseBytes; noise > 0 {
				fmt.Printf("(skipped %d noise bytes)\n", noise)
			}
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  %s\n", tasmota.FormatFrame(frame))
			return 0
		case errors.Is(err, tasmota.ErrTimeout):
			continue
		case tasmota.IsRecoverable(err):
			invalid++
		default:
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			return 2
		}
	}
}
