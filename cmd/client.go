// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	clientFeatures   string
	clientTelePeriod uint64
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Emulate a TasmotaClient module",
	Long: `Run the module side of the link with demo handlers.

The emulated module answers FEATURES with the handlers selected by --features,
replies to FUNC_JSON with a small status object, counts FUNC_EVERY_SECOND and
FUNC_EVERY_100_MSECOND ticks, and answers CLIENT_SEND strings with telemetry.
A CLIENT_SEND string of the form "exec <command>" is sent back to the host as
EXECUTE_CMND.

Useful for exercising a Tasmota host without flashing a microcontroller.`,
	RunE: runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().StringVar(&clientFeatures, "features", "all", "Handlers to attach (json, second, 100ms, send, all)")
	clientCmd.Flags().Uint64Var(&clientTelePeriod, "tele-period", 10, "Seconds between telemetry reports (0 disables)")
}

func runClient(cmd *cobra.Command, args []string) error {
	kinds, err := parseFeatures(clientFeatures)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	client := tasmota.NewClient(conn, linkOptions()...)
	newDemoModule(client, kinds, clientTelePeriod)

	fmt.Printf("Tasmolink - Module Emulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Features: %s (0x%02X)\n", client.Features(), uint8(client.Features()))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, cancel := signalContext()
	defer cancel()

	err = client.Run(ctx)
	fmt.Print(client.Stats())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, ErrConnectionClosed) {
		log.Info().Msg("connection closed")
		return nil
	}
	return err
}
