// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	monitorShowAll    bool
	monitorTelePeriod time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive host with live statistics",
	Long: `Drive the module as the Tasmota host inside a terminal UI.

Shows the module's feature report, frame statistics and rates, the latest
FUNC_JSON and PUBLISH_TELE payloads, EXECUTE_CMND requests and link errors.
Text typed at the prompt is forwarded to the module as CLIENT_SEND.

Use --show-all to log every frame, not just commands and errors.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every frame")
	monitorCmd.Flags().DurationVar(&monitorTelePeriod, "tele-period", 10*time.Second, "Interval between FUNC_JSON requests")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Log lines would tear the alternate screen
	quiet := log.Logger.Level(zerolog.Disabled)
	host := tasmota.NewHost(conn,
		tasmota.WithReadTimeout(readTimeout),
		tasmota.WithTelePeriod(monitorTelePeriod),
		tasmota.WithLogger(quiet),
	)

	m := initialModel(connInfo, host.Stats(), host, monitorShowAll)
	p := tea.NewProgram(m, tea.WithAltScreen())

	host.OnFrame = func(f *tasmota.Frame) { p.Send(frameMsg{frame: f}) }
	host.OnError = func(err error) { p.Send(linkErrorMsg{err: err}) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := host.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		p.Send(linkClosedMsg{err: err})
	}()

	_, err = p.Run()
	return err
}
