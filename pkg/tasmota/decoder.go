// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"fmt"
	"time"
)

// Direction selects which frame grammar a Decoder accepts.
type Direction int

const (
	// FromModule decodes frames sent by the module:
	// [START][cmd][param][END] or [START][cmd][PARAM_START][payload][PARAM_END][END].
	FromModule Direction = iota
	// FromHost decodes requests sent by the host:
	// [START][cmd][END] or [START][CLIENT_SEND][len][data][END].
	FromHost
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == FromHost {
		return "host"
	}
	return "module"
}

// Decoder implements the streaming frame decoder state machine
type Decoder struct {
	dir     Direction
	state   int
	frame   *Frame
	size    int
	payload []byte
	raw     []byte // Accumulate raw bytes of the frame in progress
	noise   uint64
}

// NewDecoder creates a decoder for module-originated frames
func NewDecoder() *Decoder {
	return NewDirectionalDecoder(FromModule)
}

// NewRequestDecoder creates a decoder for host-originated requests
func NewRequestDecoder() *Decoder {
	return NewDirectionalDecoder(FromHost)
}

// NewDirectionalDecoder creates a decoder for the given direction
func NewDirectionalDecoder(dir Direction) *Decoder {
	return &Decoder{
		dir:     dir,
		state:   stateIdle,
		payload: make([]byte, 0, MaxPayloadSize),
		raw:     make([]byte, 0, MaxPayloadSize+8),
	}
}

// Direction returns the grammar the decoder accepts
func (d *Decoder) Direction() Direction {
	return d.dir
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.frame = nil
	d.size = 0
	d.payload = d.payload[:0]
	d.raw = d.raw[:0]
}

// RawBytes returns the raw bytes of the frame in progress
func (d *Decoder) RawBytes() []byte {
	return d.raw
}

// Noise returns the number of bytes seen outside any frame
func (d *Decoder) Noise() uint64 {
	return d.noise
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed frame, or nil if the frame is incomplete
// Returns an error if the frame in progress was abandoned
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	// The size byte and length-prefixed data may carry any value, including markers
	if b == StartByte && d.state != stateData && d.state != stateSize {
		var err error
		if d.state != stateIdle {
			err = d.fail(fmt.Errorf("restarted by start marker: %w", ErrFraming))
		}
		d.Reset()
		d.raw = append(d.raw, b)
		d.state = stateCommand
		return nil, err
	}

	if d.state == stateIdle {
		d.noise++
		return nil, nil
	}
	d.raw = append(d.raw, b)

	switch d.state {
	case stateCommand:
		if IsReserved(b) {
			return nil, d.fail(fmt.Errorf("marker 0x%02X in command position: %w", b, ErrFraming))
		}
		d.frame = &Frame{Command: b}
		switch {
		case d.dir == FromModule:
			d.state = stateParam
		case b == CmdClientSend:
			d.state = stateSize
		default:
			d.state = stateEnd
		}
		return nil, nil

	case stateParam:
		switch b {
		case ParamStartByte:
			d.frame.HasPayload = true
			d.state = statePayload
		case EndByte, ParamEndByte:
			return nil, d.fail(fmt.Errorf("marker 0x%02X in param position: %w", b, ErrFraming))
		default:
			d.frame.Param = b
			d.state = stateEnd
		}
		return nil, nil

	case statePayload:
		if b == ParamEndByte {
			d.state = stateEnd
			return nil, nil
		}
		if IsReserved(b) {
			return nil, d.fail(fmt.Errorf("marker 0x%02X inside payload: %w", b, ErrFraming))
		}
		// Check for buffer overflow before accepting byte
		if len(d.payload) >= MaxPayloadSize {
			return nil, d.fail(fmt.Errorf("payload exceeds %d bytes: %w", MaxPayloadSize, ErrOverflow))
		}
		d.payload = append(d.payload, b)
		return nil, nil

	case stateSize:
		d.size = int(b)
		d.frame.HasPayload = true
		if d.size == 0 {
			d.state = stateEnd
		} else {
			d.state = stateData
		}
		return nil, nil

	case stateData:
		d.payload = append(d.payload, b)
		if len(d.payload) >= d.size {
			d.state = stateEnd
		}
		return nil, nil

	case stateEnd:
		if b != EndByte {
			return nil, d.fail(fmt.Errorf("got 0x%02X instead of end marker: %w", b, ErrFraming))
		}
		frame := d.frame
		if frame.HasPayload {
			frame.Payload = append([]byte(nil), d.payload...)
		}
		frame.Timestamp = time.Now()
		d.Reset()
		return frame, nil

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", state)
	}
}

// Decode feeds data through the decoder and returns every completed frame
// along with every error encountered, in order.
func (d *Decoder) Decode(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

// fail abandons the frame in progress and wraps err with its command
func (d *Decoder) fail(err error) error {
	var cmd uint8
	if d.frame != nil {
		cmd = d.frame.Command
	}
	d.Reset()
	return frameErr(cmd, err)
}
