// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	discoveryWait int
	discoveryPick bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find serial ports with a TasmotaClient module attached",
	Long: `Open every serial port on the system, send a FEATURES request and report
the ports whose module answers with a feature report.

With --pick the responding ports are shown in a list and the selected port
name is printed on stdout, so it can feed --port:

  tasmolink monitor --port "$(tasmolink discovery --pick)"

Exit codes:
  0 - At least one module found
  1 - No module answered
  2 - Ports could not be listed`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryWait, "wait", 2, "Seconds to wait on each port")
	discoveryCmd.Flags().BoolVar(&discoveryPick, "pick", false, "Choose a port interactively")
}

// discoveredPort is a port whose module answered
type discoveredPort struct {
	name     string
	features tasmota.Features
}

// Implement list.Item interface
func (d discoveredPort) Title() string       { return d.name }
func (d discoveredPort) Description() string { return "features: " + d.features.String() }
func (d discoveredPort) FilterValue() string { return d.name }

func runDiscovery(cmd *cobra.Command, args []string) error {
	names, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list ports: %v\n", err)
		os.Exit(2)
	}

	// Progress goes to stderr when stdout carries the pick
	progress := io.Writer(os.Stdout)
	if discoveryPick {
		progress = os.Stderr
	}

	wait := time.Duration(discoveryWait) * time.Second
	found := discover(names, func(name string) (Connection, error) {
		return OpenSerialConnection(name, baudRate)
	}, wait, progress)

	if len(found) == 0 {
		fmt.Fprintf(progress, "No modules found on %d ports\n", len(names))
		os.Exit(1)
	}
	if !discoveryPick {
		return nil
	}

	picked, err := pickPort(found)
	if err != nil {
		return err
	}
	if picked != "" {
		fmt.Println(picked)
	}
	return nil
}

// discover probes each port in turn
func discover(names []string, open func(string) (Connection, error), wait time.Duration, out io.Writer) []discoveredPort {
	var found []discoveredPort
	for _, name := range names {
		fmt.Fprintf(out, "%s: ", name)
		conn, err := open(name)
		if err != nil {
			fmt.Fprintf(out, "open failed: %v\n", err)
			continue
		}

		host := tasmota.NewHost(conn, linkOptions()...)
		features, err := host.QueryFeatures(wait)
		conn.Close()
		if err != nil {
			fmt.Fprintf(out, "no module (%v)\n", err)
			continue
		}
		fmt.Fprintf(out, "module found, features=%s\n", features)
		found = append(found, discoveredPort{name: name, features: features})
	}
	return found
}

// Port picker model
type pickModel struct {
	list   list.Model
	choice string
}

func newPickModel(ports []discoveredPort) pickModel {
	items := make([]list.Item, len(ports))
	for i, p := range ports {
		items[i] = p
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	l := list.New(items, delegate, 40, 12)
	l.Title = "Modules"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return pickModel{list: l}
}

func (m pickModel) Init() tea.Cmd {
	return nil
}

func (m pickModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		case "enter":
			if p, ok := m.list.SelectedItem().(discoveredPort); ok {
				m.choice = p.name
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickModel) View() string {
	return m.list.View()
}

func pickPort(ports []discoveredPort) (string, error) {
	p := tea.NewProgram(newPickModel(ports), tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	return final.(pickModel).choice, nil
}
