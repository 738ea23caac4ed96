// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	demoDuration time.Duration
	demoFeatures string
	demoSend     []string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an emulated module and host over an in-memory link",
	Long: `Connect the module emulator to the host driver through an in-memory pipe
and print the traffic. No hardware is needed.

The host runs with a short tele period so FUNC_JSON replies appear quickly.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().DurationVar(&demoDuration, "duration", 5*time.Second, "How long to run")
	demoCmd.Flags().StringVar(&demoFeatures, "features", "all", "Handlers the module attaches")
	demoCmd.Flags().StringArrayVar(&demoSend, "send", []string{"Hello", "exec Power1 TOGGLE"}, "CLIENT_SEND strings")
}

func runDemo(cmd *cobra.Command, args []string) error {
	kinds, err := parseFeatures(demoFeatures)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, demoDuration)
	defer cancelRun()

	return demo(ctx, kinds, demoSend, os.Stdout)
}

func demo(ctx context.Context, kinds []tasmota.Kind, send []string, out io.Writer) error {
	hostEnd, moduleEnd := tasmota.Pipe()
	defer hostEnd.Close()

	client := tasmota.NewClient(moduleEnd, linkOptions()...)
	newDemoModule(client, kinds, 1)

	host := tasmota.NewHost(hostEnd, linkOptions(tasmota.WithTelePeriod(2*time.Second))...)
	host.OnFrame = func(f *tasmota.Frame) {
		fmt.Fprintf(out, "module -> %s\n", tasmota.FormatFrame(f))
	}
	host.OnError = func(err error) {
		fmt.Fprintf(out, "[ERROR] %v\n", err)
	}
	host.OnFeatures = func(tasmota.Features) {
		for _, text := range send {
			fmt.Fprintf(out, "host   -> CLIENT_SEND %q\n", text)
			if err := host.ClientSend(text); err != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", err)
			}
		}
		send = nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 2)
	go func() { done <- client.Run(ctx) }()
	go func() { done <- host.Run(ctx) }()

	// First side to stop takes the other down
	err := <-done
	cancel()
	<-done
	fmt.Fprintf(out, "\nHost:\n%sModule:\n%s", host.Stats(), client.Stats())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
