// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	resetChip  string
	resetLine  int
	resetPulse time.Duration
	resetWait  time.Duration
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Pulse the module's reset line over GPIO",
	Long: `Pulse the module's reset pin through a Linux GPIO character device.

The line is driven low for --pulse and released high. When a link is given
with --port or --url, a FEATURES query is sent afterwards to confirm the
module came back.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().StringVar(&resetChip, "chip", "gpiochip0", "GPIO chip")
	resetCmd.Flags().IntVar(&resetLine, "line", 0, "Line offset wired to the module's reset pin")
	resetCmd.Flags().DurationVar(&resetPulse, "pulse", 100*time.Millisecond, "How long reset is held low")
	resetCmd.Flags().DurationVar(&resetWait, "wait", 3*time.Second, "How long to wait for the module afterwards")
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := pulseReset(resetChip, resetLine, resetPulse); err != nil {
		return err
	}
	fmt.Printf("Reset pulsed on %s line %d\n", resetChip, resetLine)

	if portName == "" && wsURL == "" {
		return nil
	}

	conn, _, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	host := tasmota.NewHost(conn, linkOptions()...)
	features, err := host.QueryFeatures(resetWait)
	if err != nil {
		return fmt.Errorf("module did not answer after reset: %w", err)
	}
	fmt.Printf("Module is back, features: %s\n", features)
	return nil
}
