// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	pingWait  int
	pingCount int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure FEATURES round trips to the module",
	Long: `Send FEATURES requests to the module and wait for each feature report.

This is useful for verifying:
  - The link is established in both directions
  - HTTP Basic authentication works (WebSocket)
  - The module's loop is running

Exit codes:
  0 - All pings answered
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingWait, "wait", 2, "Seconds to wait for each reply")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Tasmolink - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	host := tasmota.NewHost(conn, linkOptions()...)
	failed := ping(host, pingCount, time.Duration(pingWait)*time.Second, os.Stdout)
	conn.Close()
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

// ping returns how many of count requests went unanswered
func ping(host *tasmota.Host, count int, wait time.Duration, out io.Writer) int {
	failed := 0
	for i := 1; i <= count; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, count)

		start := time.Now()
		features, err := host.QueryFeatures(wait)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "features=%s rtt=%v\n", features, time.Since(start).Round(time.Millisecond))

		// Small delay between pings
		if i < count {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	if count > 0 {
		fmt.Fprintf(out, "%d pings sent, %d replies received, %.0f%% loss\n",
			count, count-failed, float64(failed)/float64(count)*100)
	}
	return failed
}
