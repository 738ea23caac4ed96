// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Host is the Tasmota side of the link. It polls the module for features,
// forwards timer ticks and command strings, and decodes the module's frames.
//
// Handlers must be set before Run and are called from the reading goroutine.
// Request and ClientSend may be called from any goroutine.
type Host struct {
	port   Port
	reader *FrameReader
	dec    *Decoder
	cfg    Config
	stats  *Statistics
	noise  uint64

	wmu sync.Mutex

	features atomic.Uint32
	known    atomic.Bool

	OnFeatures  func(Features)
	OnJSON      func(string)
	OnTelemetry func(string)
	OnExecute   func(string)
	OnFrame     func(*Frame)
	OnError     func(error)
}

// NewHost creates a host bound to port.
func NewHost(port Port, opts ...Option) *Host {
	return &Host{
		port:   port,
		reader: NewFrameReader(port),
		dec:    NewDecoder(),
		cfg:    newConfig(opts),
		stats:  NewStatistics(),
	}
}

// Stats returns the host's link statistics.
func (h *Host) Stats() *Statistics {
	return h.stats
}

// Features returns the last feature report and whether one has been received.
func (h *Host) Features() (Features, bool) {
	return Features(h.features.Load()), h.known.Load()
}

// Request sends a request without data, e.g. FEATURES or a tick.
func (h *Host) Request(cmd uint8) error {
	if IsReserved(cmd) {
		return fmt.Errorf("command 0x%02X: %w", cmd, ErrReservedByte)
	}
	return h.write(EncodeRequest(cmd))
}

// ClientSend forwards a command string to the module's CLIENT_SEND handler.
func (h *Host) ClientSend(text string) error {
	frame, err := EncodeClientSend([]byte(text))
	if err != nil {
		return err
	}
	return h.write(frame)
}

func (h *Host) write(frame []byte) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	n, err := h.port.Write(frame)
	if err != nil {
		return err
	}
	if n < len(frame) {
		return io.ErrShortWrite
	}
	return nil
}

// ReadFrame waits up to timeout for the next complete frame from the module
// and dispatches it to the handlers. A partial frame is kept across calls.
func (h *Host) ReadFrame(timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		for h.reader.Buffered() > 0 {
			b, err := h.reader.Next(0)
			if err != nil {
				return nil, err
			}
			frame, err := h.dec.DecodeByte(b)
			h.countNoise()
			if err != nil {
				h.stats.Update(err)
				return nil, err
			}
			if frame != nil {
				h.stats.Update(nil)
				h.dispatch(frame)
				return frame, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if err := h.reader.Fill(remaining); err != nil {
			return nil, err
		}
	}
}

// QueryFeatures requests a feature report and waits for it.
// Other frames arriving meanwhile are dispatched as usual.
func (h *Host) QueryFeatures(timeout time.Duration) (Features, error) {
	frame, err := h.await(CmdFeatures, timeout)
	if err != nil {
		return 0, err
	}
	return frame.Features(), nil
}

// RequestJSON sends FUNC_JSON and waits for the module's JSON reply.
func (h *Host) RequestJSON(timeout time.Duration) (string, error) {
	frame, err := h.await(CmdFuncJSON, timeout)
	if err != nil {
		return "", err
	}
	return frame.Text(), nil
}

func (h *Host) await(cmd uint8, timeout time.Duration) (*Frame, error) {
	if err := h.Request(cmd); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("waiting for %s: %w", FormatCommand(cmd), ErrTimeout)
		}
		frame, err := h.ReadFrame(remaining)
		if err != nil {
			if IsRecoverable(err) {
				if !errors.Is(err, ErrTimeout) {
					h.reportError(err)
				}
				continue
			}
			return nil, err
		}
		if frame.Command == cmd {
			return frame, nil
		}
	}
}

// Run drives the link until ctx is done or the transport fails.
//
// Until the module answers a feature query the query is repeated once per
// second. After that FUNC_EVERY_100_MSECOND is sent every tick,
// FUNC_EVERY_SECOND every ten ticks and FUNC_JSON every tele period, each only
// when the module reports the matching feature.
func (h *Host) Run(ctx context.Context) error {
	log := h.cfg.Logger
	interval := h.cfg.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	if err := h.Request(CmdFeatures); err != nil {
		return fmt.Errorf("link failed: %w", err)
	}

	var ticks uint64
	lastTele := time.Now()
	next := time.Now().Add(interval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if wait := time.Until(next); wait > 0 {
			_, err := h.ReadFrame(wait)
			switch {
			case err == nil, errors.Is(err, ErrTimeout):
			case IsRecoverable(err):
				log.Debug().Err(err).Msg("frame dropped")
				h.reportError(err)
			default:
				return fmt.Errorf("link failed: %w", err)
			}
			continue
		}

		next = next.Add(interval)
		ticks++
		if err := h.tick(ticks, &lastTele); err != nil {
			return fmt.Errorf("link failed: %w", err)
		}
	}
}

func (h *Host) tick(ticks uint64, lastTele *time.Time) error {
	features, known := h.Features()
	if !known {
		if ticks%10 == 0 {
			h.cfg.Logger.Debug().Msg("repeating feature query")
			return h.Request(CmdFeatures)
		}
		return nil
	}

	if features.Has(KindEvery100ms) {
		if err := h.Request(CmdFuncEvery100ms); err != nil {
			return err
		}
	}
	if ticks%10 == 0 && features.Has(KindEverySecond) {
		if err := h.Request(CmdFuncEverySecond); err != nil {
			return err
		}
	}
	if h.cfg.TelePeriod > 0 && time.Since(*lastTele) >= h.cfg.TelePeriod {
		*lastTele = time.Now()
		if features.Has(KindFuncJSON) {
			return h.Request(CmdFuncJSON)
		}
	}
	return nil
}

func (h *Host) dispatch(frame *Frame) {
	if h.OnFrame != nil {
		h.OnFrame(frame)
	}
	switch frame.Command {
	case CmdFeatures:
		h.features.Store(uint32(frame.Features()))
		h.known.Store(true)
		h.cfg.Logger.Debug().Stringer("features", frame.Features()).Msg("features reported")
		if h.OnFeatures != nil {
			h.OnFeatures(frame.Features())
		}
	case CmdFuncJSON:
		if h.OnJSON != nil {
			h.OnJSON(frame.Text())
		}
	case CmdPublishTele:
		if h.OnTelemetry != nil {
			h.OnTelemetry(frame.Text())
		}
	case CmdExecuteCmnd:
		if h.OnExecute != nil {
			h.OnExecute(frame.Text())
		}
	default:
		h.cfg.Logger.Debug().Uint8("cmd", frame.Command).Msg("unexpected frame from module")
	}
}

func (h *Host) reportError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h *Host) countNoise() {
	if n := h.dec.Noise(); n != h.noise {
		h.stats.AddNoise(int(n - h.noise))
		h.noise = n
	}
}
