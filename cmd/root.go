// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Link flags
	logLevel    string
	readTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tasmolink",
	Short: "TasmotaClient serial link toolkit",
	Long: `Tasmolink - A CLI tool for driving, emulating and analyzing the TasmotaClient
serial protocol between a Tasmota host and a microcontroller module.

Provides commands to emulate either side of the link, sniff and capture raw
traffic, bridge a module to MQTT, and probe a port for a live module.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the TASMOLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 57600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Link flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "timeout", 50*time.Millisecond, "Per-wait timeout for frame bytes")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
