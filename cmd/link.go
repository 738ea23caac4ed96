// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/tasmolink/pkg/capture"
	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

// linkOptions builds the library options shared by every command
func linkOptions(extra ...tasmota.Option) []tasmota.Option {
	opts := []tasmota.Option{
		tasmota.WithReadTimeout(readTimeout),
		tasmota.WithLogger(log.Logger),
	}
	return append(opts, extra...)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openCapture wraps conn so both directions are recorded to path.
// in names the direction of bytes read from conn.
func openCapture(conn Connection, path string, in, out tasmota.Direction) (tasmota.Port, func() error, error) {
	if path == "" {
		return conn, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	w := capture.NewWriter(f)
	closer := func() error {
		log.Info().Int("records", w.Count()).Str("file", path).Msg("capture closed")
		return f.Close()
	}
	return capture.WrapPort(conn, w, in, out), closer, nil
}

// demoModule gives an emulated module something to report
type demoModule struct {
	client  *tasmota.Client
	started time.Time
	seconds uint64
	ticks   uint64
	last    string
	period  uint64
}

// parseFeatures maps names like "json,second,100ms,send" to kinds.
func parseFeatures(list string) ([]tasmota.Kind, error) {
	var kinds []tasmota.Kind
	for _, name := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "json", "func_json":
			kinds = append(kinds, tasmota.KindFuncJSON)
		case "second", "every_second":
			kinds = append(kinds, tasmota.KindEverySecond)
		case "100ms", "every_100ms":
			kinds = append(kinds, tasmota.KindEvery100ms)
		case "send", "client_send":
			kinds = append(kinds, tasmota.KindCommandSend)
		case "all":
			kinds = append(kinds, tasmota.Kinds...)
		default:
			return nil, fmt.Errorf("unknown feature %q (use json, second, 100ms, send or all)", name)
		}
	}
	return kinds, nil
}

// newDemoModule attaches demo handlers for kinds to client.
// Telemetry is published every telePeriod seconds of FUNC_EVERY_SECOND ticks.
func newDemoModule(client *tasmota.Client, kinds []tasmota.Kind, telePeriod uint64) *demoModule {
	m := &demoModule{client: client, started: time.Now(), period: telePeriod}
	for _, k := range kinds {
		switch k {
		case tasmota.KindFuncJSON:
			client.AttachFuncJSON(m.onJSON)
		case tasmota.KindEverySecond:
			client.AttachEverySecond(m.onSecond)
		case tasmota.KindEvery100ms:
			client.AttachEvery100ms(func() { m.ticks++ })
		case tasmota.KindCommandSend:
			client.AttachCommandSend(m.onCommand)
		}
	}
	return m
}

func (m *demoModule) status() string {
	return fmt.Sprintf(`{"Uptime":%d,"Seconds":%d,"Ticks":%d,"Last":%q}`,
		int(time.Since(m.started).Seconds()), m.seconds, m.ticks, m.last)
}

func (m *demoModule) onJSON() {
	if err := m.client.SendJSON(m.status()); err != nil {
		log.Warn().Err(err).Msg("failed to send JSON")
	}
}

func (m *demoModule) onSecond() {
	m.seconds++
	if m.period > 0 && m.seconds%m.period == 0 {
		if err := m.client.SendTele(m.status()); err != nil {
			log.Warn().Err(err).Msg("failed to send telemetry")
		}
	}
}

func (m *demoModule) onCommand(text string) {
	m.last = text
	log.Info().Str("text", text).Msg("command received")

	// "exec <cmnd>" asks the host to run a Tasmota command
	if rest, ok := strings.CutPrefix(text, "exec "); ok {
		if err := m.client.ExecuteCommand(rest); err != nil {
			log.Warn().Err(err).Msg("failed to send command")
		}
		return
	}
	if err := m.client.SendTele(fmt.Sprintf(`{"Received":%q}`, text)); err != nil {
		log.Warn().Err(err).Msg("failed to send telemetry")
	}
}
