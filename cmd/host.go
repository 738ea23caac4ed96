// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	hostSend       []string
	hostTelePeriod time.Duration
	hostCapture    string
	hostOnce       bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Drive a module as the Tasmota host",
	Long: `Run the Tasmota side of the link and print every frame the module sends.

The host queries the module's features, then forwards FUNC_EVERY_100_MSECOND,
FUNC_EVERY_SECOND and periodic FUNC_JSON requests for the features it reports.
Strings given with --send are forwarded as CLIENT_SEND once features are known.

With --once the host queries features and JSON a single time and exits.`,
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().StringArrayVar(&hostSend, "send", nil, "CLIENT_SEND string (repeatable)")
	hostCmd.Flags().DurationVar(&hostTelePeriod, "tele-period", 10*time.Second, "Interval between FUNC_JSON requests")
	hostCmd.Flags().StringVar(&hostCapture, "capture", "", "Record raw traffic to a capture file")
	hostCmd.Flags().BoolVar(&hostOnce, "once", false, "Query features and JSON once, then exit")
}

func runHost(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	port, closeCapture, err := openCapture(conn, hostCapture, tasmota.FromModule, tasmota.FromHost)
	if err != nil {
		return err
	}
	defer closeCapture()

	host := tasmota.NewHost(port, linkOptions(tasmota.WithTelePeriod(hostTelePeriod))...)

	fmt.Printf("Tasmolink - Host\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if hostOnce {
		return runHostOnce(host)
	}

	pending := hostSend
	host.OnFrame = func(f *tasmota.Frame) {
		fmt.Println(tasmota.FormatFrame(f))
	}
	host.OnError = func(err error) {
		fmt.Printf("[ERROR] %v\n", err)
	}
	host.OnFeatures = func(f tasmota.Features) {
		for _, text := range pending {
			if err := host.ClientSend(text); err != nil {
				log.Warn().Err(err).Str("text", text).Msg("failed to send")
			}
		}
		pending = nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = host.Run(ctx)
	fmt.Print(host.Stats())
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}

func runHostOnce(host *tasmota.Host) error {
	timeout := time.Second
	features, err := host.QueryFeatures(timeout)
	if err != nil {
		return fmt.Errorf("feature query failed: %w", err)
	}
	fmt.Printf("Features: %s (0x%02X)\n", features, uint8(features))

	for _, text := range hostSend {
		if err := host.ClientSend(text); err != nil {
			return err
		}
		fmt.Printf("Sent: %q\n", text)
	}

	if features.Has(tasmota.KindFuncJSON) {
		json, err := host.RequestJSON(timeout)
		if err != nil {
			return fmt.Errorf("JSON request failed: %w", err)
		}
		fmt.Printf("JSON: %s\n", json)
	}
	return nil
}
