// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Client is the module side of the link.
//
// A Client is single-threaded: Loop, Run, the Send methods and the Attach methods
// must all be called from the same goroutine. Handlers run on that goroutine and
// may call the Send methods.
type Client struct {
	port        Port
	reader      *FrameReader
	handlers    Handlers
	initialized bool
	cfg         Config
	stats       *Statistics

	// Inbound CLIENT_SEND payload. Only the in-flight frame touches it.
	rx    [ReceiveBufferSize]byte
	rxLen int
}

// NewClient creates a client bound to port. A nil port leaves the client
// uninitialized; every operation then returns ErrNotInitialized.
func NewClient(port Port, opts ...Option) *Client {
	c := &Client{
		cfg:   newConfig(opts),
		stats: NewStatistics(),
	}
	if port != nil {
		c.port = port
		c.reader = NewFrameReader(port)
		c.initialized = true
	}
	return c
}

// Initialized reports whether a transport is bound.
func (c *Client) Initialized() bool {
	return c.initialized
}

// Stats returns the client's link statistics.
func (c *Client) Stats() *Statistics {
	return c.stats
}

// AttachFuncJSON sets the FUNC_JSON handler. Nil unregisters it.
func (c *Client) AttachFuncJSON(fn func()) {
	c.handlers.funcJSON = fn
}

// AttachEverySecond sets the FUNC_EVERY_SECOND handler. Nil unregisters it.
func (c *Client) AttachEverySecond(fn func()) {
	c.handlers.everySecond = fn
}

// AttachEvery100ms sets the FUNC_EVERY_100_MSECOND handler. Nil unregisters it.
func (c *Client) AttachEvery100ms(fn func()) {
	c.handlers.every100ms = fn
}

// AttachCommandSend sets the CLIENT_SEND handler. Nil unregisters it.
func (c *Client) AttachCommandSend(fn func(string)) {
	c.handlers.commandSend = fn
}

// Features returns the bitmask of currently attached handlers.
func (c *Client) Features() Features {
	return c.handlers.Features()
}

// SendFeatures reports the attached handlers to the host.
func (c *Client) SendFeatures() error {
	return c.SendCommand(CmdFeatures, uint8(c.Features()))
}

// SendCommand writes [START][cmd][param][END].
func (c *Client) SendCommand(cmd, param uint8) error {
	frame, err := EncodeCommand(cmd, param)
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// SendJSON sends a FUNC_JSON payload to the host.
func (c *Client) SendJSON(json string) error {
	return c.sendPayload(CmdFuncJSON, json)
}

// SendTele sends telemetry for the host to publish.
func (c *Client) SendTele(data string) error {
	return c.sendPayload(CmdPublishTele, data)
}

// ExecuteCommand asks the host to execute a command string.
func (c *Client) ExecuteCommand(cmnd string) error {
	return c.sendPayload(CmdExecuteCmnd, cmnd)
}

// Write writes raw bytes straight to the transport.
func (c *Client) Write(p []byte) (int, error) {
	if !c.initialized {
		return 0, ErrNotInitialized
	}
	return c.port.Write(p)
}

// WriteByte writes a single raw byte to the transport.
func (c *Client) WriteByte(b byte) error {
	return c.writeFrame([]byte{b})
}

func (c *Client) sendPayload(cmd uint8, payload string) error {
	frame, err := EncodePayload(cmd, []byte(payload))
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

func (c *Client) writeFrame(frame []byte) error {
	n, err := c.Write(frame)
	if err != nil {
		return err
	}
	if n < len(frame) {
		return io.ErrShortWrite
	}
	return nil
}

// Loop services the link once. It checks for a start marker, discarding any
// noise before it, and if one is found processes exactly one frame.
//
// Protocol errors are returned for the caller's information only; the link has
// already recovered and the next call resynchronizes on the next start marker.
// Use IsRecoverable to tell them apart from transport errors.
func (c *Client) Loop() error {
	_, err := c.loop(c.cfg.PollTimeout)
	return err
}

// Run calls Loop until ctx is done or the transport fails.
func (c *Client) Run(ctx context.Context) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	log := c.cfg.Logger
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		handled, err := c.loop(c.cfg.PollTimeout)
		if err != nil {
			if !IsRecoverable(err) {
				return fmt.Errorf("link failed: %w", err)
			}
			log.Debug().Err(err).Msg("frame dropped")
			continue
		}
		if !handled && c.reader.Buffered() == 0 {
			if err := c.reader.Fill(c.cfg.IdleTimeout); err != nil {
				return fmt.Errorf("link failed: %w", err)
			}
		}
	}
}

func (c *Client) loop(poll time.Duration) (bool, error) {
	if !c.initialized {
		return false, ErrNotInitialized
	}
	if c.reader.Buffered() == 0 {
		if err := c.reader.Fill(poll); err != nil {
			return false, err
		}
	}

	skipped, found := c.reader.SkipTo(StartByte)
	if skipped > 0 {
		c.stats.AddNoise(skipped)
		c.cfg.Logger.Debug().Int("bytes", skipped).Msg("skipped noise")
	}
	if !found {
		return false, nil
	}

	err := c.processCommand()
	c.stats.Update(err)
	return true, err
}

// processCommand handles one frame after its start marker has been consumed.
func (c *Client) processCommand() error {
	timeout := c.cfg.ReadTimeout

	cmd, err := c.reader.Next(timeout)
	for err == nil && cmd == StartByte {
		// A repeated start marker restarts the frame.
		cmd, err = c.reader.Next(timeout)
	}
	if err != nil {
		return err
	}

	switch cmd {
	case CmdFeatures:
		if err := c.expectEnd(cmd); err != nil {
			return err
		}
		c.cfg.Logger.Debug().Stringer("features", c.Features()).Msg("features requested")
		return c.SendFeatures()

	case CmdFuncJSON, CmdFuncEverySecond, CmdFuncEvery100ms:
		if err := c.expectEnd(cmd); err != nil {
			return err
		}
		if fn := c.handlers.tick(cmd); fn != nil {
			fn()
		}
		return nil

	case CmdClientSend:
		return c.processSend()

	case CmdPublishTele, CmdExecuteCmnd:
		return c.skipPayload(cmd)

	default:
		return frameErr(cmd, ErrUnknownCommand)
	}
}

// processSend reads a CLIENT_SEND body: [size][data...][END].
func (c *Client) processSend() error {
	timeout := c.cfg.ReadTimeout

	size, err := c.reader.Next(timeout)
	if err != nil {
		return frameErr(CmdClientSend, err)
	}
	n := int(size)

	if n > len(c.rx) {
		// Drain the declared body without touching rx. If it never fully
		// arrives the remainder is skipped as noise by the next loop.
		err := c.reader.WaitForBytes(n+1, timeout)
		switch {
		case err == nil:
			c.reader.Discard(n)
			if err := c.expectEnd(CmdClientSend); err != nil {
				c.cfg.Logger.Debug().Err(err).Msg("oversized frame also misframed")
			}
		case !IsRecoverable(err):
			return err
		}
		return frameErr(CmdClientSend, fmt.Errorf("declared %d bytes (max %d): %w", n, len(c.rx), ErrOverflow))
	}

	if err := c.reader.WaitForBytes(n+1, timeout); err != nil {
		return frameErr(CmdClientSend, err)
	}
	if err := c.reader.ReadInto(c.rx[:n], timeout); err != nil {
		return frameErr(CmdClientSend, err)
	}
	c.rxLen = n

	if err := c.expectEnd(CmdClientSend); err != nil {
		return err
	}
	if fn := c.handlers.commandSend; fn != nil {
		fn(string(c.rx[:c.rxLen]))
	}
	return nil
}

// skipPayload drops an outbound-only frame received from the host.
func (c *Client) skipPayload(cmd uint8) error {
	timeout := c.cfg.ReadTimeout
	for {
		b, err := c.reader.PeekByte(timeout)
		if err != nil {
			return frameErr(cmd, err)
		}
		if b == StartByte {
			return frameErr(cmd, ErrFraming)
		}
		c.reader.Discard(1)
		if b == EndByte {
			return nil
		}
	}
}

// expectEnd consumes the end marker. A start marker in its place is left
// buffered so the next loop iteration picks it up.
func (c *Client) expectEnd(cmd uint8) error {
	b, err := c.reader.PeekByte(c.cfg.ReadTimeout)
	if err != nil {
		return frameErr(cmd, err)
	}
	if b == StartByte {
		return frameErr(cmd, ErrFraming)
	}
	c.reader.Discard(1)
	if b != EndByte {
		return frameErr(cmd, fmt.Errorf("got 0x%02X instead of end marker: %w", b, ErrFraming))
	}
	return nil
}
