// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Sender forwards a CLIENT_SEND string to the module
type Sender interface {
	ClientSend(text string) error
}

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	stats         *tasmota.Statistics
	sender        Sender
	input         textinput.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	features      tasmota.Features
	featuresKnown bool
	lastJSON      string
	lastJSONAt    time.Time
	lastTele      string
	lastTeleAt    time.Time
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame *tasmota.Frame
}
type linkErrorMsg struct {
	err error
}
type linkClosedMsg struct {
	err error
}

func initialModel(connInfo string, stats *tasmota.Statistics, sender Sender, showAll bool) model {
	ti := textinput.New()
	ti.Placeholder = "CLIENT_SEND text, Enter to send"
	ti.CharLimit = tasmota.MaxPayloadSize
	ti.Width = 60
	ti.Focus()

	return model{
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         stats,
		sender:        sender,
		input:         ti,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		textinput.Blink,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if err := m.sender.ClientSend(text); err != nil {
				m.addLogEntry(fmt.Sprintf("SEND FAILED: %v", err), true)
			} else {
				m.addLogEntry(fmt.Sprintf("CLIENT_SEND %q", text), false)
			}
			m.input.SetValue("")
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case frameMsg:
		m.handleFrame(msg.frame)

	case linkErrorMsg:
		m.addLogEntry(fmt.Sprintf("FRAME ERROR: %v", msg.err), true)

	case linkClosedMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("LINK CLOSED: %v", msg.err), true)
		} else {
			m.addLogEntry("Link closed", false)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleFrame(f *tasmota.Frame) {
	switch f.Command {
	case tasmota.CmdFeatures:
		if !m.featuresKnown || m.features != f.Features() {
			m.addLogEntry(fmt.Sprintf("Features: %s", f.Features()), false)
		}
		m.features = f.Features()
		m.featuresKnown = true
	case tasmota.CmdFuncJSON:
		m.lastJSON, m.lastJSONAt = f.Text(), f.Timestamp
	case tasmota.CmdPublishTele:
		m.lastTele, m.lastTeleAt = f.Text(), f.Timestamp
		if m.showAll {
			m.addLogEntry("PUBLISH_TELE "+f.Text(), false)
		}
	case tasmota.CmdExecuteCmnd:
		m.addLogEntry("EXECUTE_CMND "+f.Text(), false)
	default:
		if m.showAll {
			m.addLogEntry(tasmota.FormatFrame(f), false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("TASMOLINK - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press Esc to quit", m.connInfo)))
	s.WriteString("\n\n")

	if !m.featuresKnown {
		s.WriteString(warningStyle.Render("⏳ Waiting for feature report..."))
	} else {
		s.WriteString(valueStyle.Render(fmt.Sprintf("✓ Module features: %s (0x%02X)", m.features, uint8(m.features))))
	}
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	errorsTotal := snap.Timeouts + snap.FramingErrors + snap.Overflows + snap.UnknownCommands + snap.DecodeErrors
	var errorPercent float64
	if snap.TotalFrames > 0 {
		errorPercent = float64(errorsTotal) * 100.0 / float64(snap.TotalFrames)
	}

	var stats strings.Builder
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d", snap.ValidFrames)),
		labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errorsTotal, errorPercent)),
	))
	if errorsTotal > 0 {
		stats.WriteString(fmt.Sprintf("%s %d  %s %d  %s %d\n",
			headerStyle.Render("framing"), snap.FramingErrors,
			headerStyle.Render("overflow"), snap.Overflows,
			headerStyle.Render("other"), snap.Timeouts+snap.UnknownCommands+snap.DecodeErrors,
		))
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", snap.FrameRate)),
		labelStyle.Render("Error Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", snap.ErrorRate)),
		labelStyle.Render("Noise:"), valueStyle.Render(fmt.Sprintf("%d bytes", snap.NoiseBytes)),
	))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Latest module output
	if m.lastJSON != "" || m.lastTele != "" {
		var latest strings.Builder
		if m.lastJSON != "" {
			latest.WriteString(fmt.Sprintf("%s %s %s\n", labelStyle.Render("JSON:"),
				headerStyle.Render(m.lastJSONAt.Format("15:04:05")), valueStyle.Render(m.lastJSON)))
		}
		if m.lastTele != "" {
			latest.WriteString(fmt.Sprintf("%s %s %s", labelStyle.Render("Tele:"),
				headerStyle.Render(m.lastTeleAt.Format("15:04:05")), valueStyle.Render(m.lastTele)))
		}
		s.WriteString(boxStyle.Width(m.width - 4).Render(strings.TrimRight(latest.String(), "\n")))
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var events strings.Builder
	if len(m.eventLog) == 0 {
		events.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				events.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				events.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(events.String()))
	s.WriteString("\n")
	s.WriteString(m.input.View())

	return s.String()
}
