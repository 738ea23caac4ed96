// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

const hostKey = "host"

var shellTelePeriod time.Duration

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive host shell",
	Long: `Open an interactive shell that drives the module as the Tasmota host.

The host keeps ticking in the background while commands are typed. Frames
from the module are printed as they arrive.

Commands:
  features       Request and show the feature report
  json           Request FUNC_JSON
  tick <kind>    Send one tick (second, 100ms)
  send <text>    Forward text as CLIENT_SEND
  stats          Show frame statistics`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().DurationVar(&shellTelePeriod, "tele-period", 0, "Interval between FUNC_JSON requests (0 disables)")
}

func runShell(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	host := tasmota.NewHost(conn, linkOptions(tasmota.WithTelePeriod(shellTelePeriod))...)

	sh := newShell(host)
	host.OnFrame = func(f *tasmota.Frame) {
		sh.Println(tasmota.FormatFrame(f))
	}
	host.OnError = func(err error) {
		sh.Printf("[ERROR] %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			sh.Printf("link stopped: %v\n", err)
		}
	}()

	sh.Printf("Tasmolink shell on %s, type help for commands\n", connInfo)
	sh.Run()
	return nil
}

func newShell(host *tasmota.Host) *ishell.Shell {
	sh := ishell.New()
	sh.Set(hostKey, host)
	sh.SetPrompt("tasmota> ")
	for _, c := range shellCommands {
		sh.AddCmd(c)
	}
	return sh
}

func hostFrom(c *ishell.Context) *tasmota.Host {
	return c.Get(hostKey).(*tasmota.Host)
}

var shellTicks = map[string]uint8{
	"second": tasmota.CmdFuncEverySecond,
	"100ms":  tasmota.CmdFuncEvery100ms,
}

var shellCommands = []*ishell.Cmd{
	{
		Name: "features",
		Help: "request the feature report",
		Func: func(c *ishell.Context) {
			host := hostFrom(c)
			if f, ok := host.Features(); ok {
				c.Printf("last report: %s (0x%02X)\n", f, uint8(f))
			}
			if err := host.Request(tasmota.CmdFeatures); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "json",
		Help: "request FUNC_JSON",
		Func: func(c *ishell.Context) {
			if err := hostFrom(c).Request(tasmota.CmdFuncJSON); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "tick",
		Help: "KIND (second, 100ms)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("tick expects one of: second, 100ms"))
				return
			}
			cmd, ok := shellTicks[c.Args[0]]
			if !ok {
				c.Err(fmt.Errorf("unknown tick %q", c.Args[0]))
				return
			}
			if err := hostFrom(c).Request(cmd); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "TEXT",
		Func: func(c *ishell.Context) {
			text := strings.Join(c.Args, " ")
			if text == "" {
				c.Err(fmt.Errorf("nothing to send"))
				return
			}
			if err := hostFrom(c).ClientSend(text); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "stats",
		Help: "show frame statistics",
		Func: func(c *ishell.Context) {
			c.Print(hostFrom(c).Stats())
		},
	},
}
