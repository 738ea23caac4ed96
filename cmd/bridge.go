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

	"github.com/Thermoquad/tasmolink/pkg/bridge"
	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	bridgeBroker     string
	bridgeDevice     string
	bridgeTelePeriod time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the module to an MQTT broker",
	Long: `Drive the module as the Tasmota host and mirror it onto MQTT with
Tasmota-style topics:

  cmnd/<device>/ClientSend   subscribed, payload forwarded as CLIENT_SEND
  tele/<device>/SENSOR       PUBLISH_TELE payloads
  tele/<device>/STATE        FUNC_JSON replies
  stat/<device>/EXECUTE      EXECUTE_CMND requests
  tele/<device>/FEATURES     retained feature report (JSON)

The broker URL takes the form tcp://[user:pass@]host:1883[/prefix]. A path
prefixes every topic. The device name defaults to one derived from the
machine id.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeBroker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	bridgeCmd.Flags().StringVar(&bridgeDevice, "device", "", "Device name used in topics")
	bridgeCmd.Flags().DurationVar(&bridgeTelePeriod, "tele-period", 300*time.Second, "Interval between FUNC_JSON requests")
}

func runBridge(cmd *cobra.Command, args []string) error {
	device := bridgeDevice
	if device == "" {
		device = bridge.DefaultDevice()
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	broker, err := bridge.NewPahoBroker(bridgeBroker, device, log.Logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	log.Info().Str("link", connInfo).Str("broker", bridgeBroker).Str("device", device).Msg("starting bridge")

	ctx, cancel := signalContext()
	defer cancel()

	host := tasmota.NewHost(conn, linkOptions(tasmota.WithTelePeriod(bridgeTelePeriod))...)
	err = bridge.New(host, broker, bridge.Topics{Device: device}, log.Logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}
	return nil
}
