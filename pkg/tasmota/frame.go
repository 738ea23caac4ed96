// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"fmt"
	"time"
)

// Frame is a decoded protocol frame.
//
// A frame carries either a single parameter byte or, when HasPayload is set,
// a delimited payload (module frames) or length-prefixed data (CLIENT_SEND requests).
// Host requests other than CLIENT_SEND carry neither.
type Frame struct {
	Command    uint8
	Param      uint8
	Payload    []byte
	HasPayload bool
	Timestamp  time.Time
}

// Features returns the feature bitmask carried by a FEATURES reply.
func (f *Frame) Features() Features {
	return Features(f.Param)
}

// Text returns the payload as a string.
func (f *Frame) Text() string {
	return string(f.Payload)
}

// Bytes encodes a module-originated frame back to wire format.
func (f *Frame) Bytes() ([]byte, error) {
	if f.HasPayload {
		return EncodePayload(f.Command, f.Payload)
	}
	return EncodeCommand(f.Command, f.Param)
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return FormatFrame(f)
}

// EncodeCommand builds the fixed four-byte frame [START][cmd][param][END].
// Reserved values are refused for both cmd and param since the decoder
// could not tell them apart from markers.
func EncodeCommand(cmd, param uint8) ([]byte, error) {
	if IsReserved(cmd) {
		return nil, fmt.Errorf("command 0x%02X: %w", cmd, ErrReservedByte)
	}
	if IsReserved(param) {
		return nil, fmt.Errorf("param 0x%02X: %w", param, ErrReservedByte)
	}
	return []byte{StartByte, cmd, param, EndByte}, nil
}

// EncodePayload builds [START][cmd][PARAM_START][payload...][PARAM_END][END].
// The length is implicit, so payload must not hold any reserved byte.
// Valid UTF-8 never does.
func EncodePayload(cmd uint8, payload []byte) ([]byte, error) {
	if IsReserved(cmd) {
		return nil, fmt.Errorf("command 0x%02X: %w", cmd, ErrReservedByte)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%d bytes (max %d): %w", len(payload), MaxPayloadSize, ErrPayloadTooLarge)
	}
	for i, b := range payload {
		if IsReserved(b) {
			return nil, fmt.Errorf("byte 0x%02X at offset %d: %w", b, i, ErrReservedByte)
		}
	}

	frame := make([]byte, 0, len(payload)+5)
	frame = append(frame, StartByte, cmd, ParamStartByte)
	frame = append(frame, payload...)
	frame = append(frame, ParamEndByte, EndByte)
	return frame, nil
}

// EncodeRequest builds a host request without data: [START][cmd][END].
func EncodeRequest(cmd uint8) []byte {
	return []byte{StartByte, cmd, EndByte}
}

// EncodeClientSend builds a CLIENT_SEND request: [START][0x05][len][data...][END].
// The data is length-prefixed and may hold any byte value.
func EncodeClientSend(data []byte) ([]byte, error) {
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("%d bytes (max %d): %w", len(data), MaxPayloadSize, ErrPayloadTooLarge)
	}
	frame := make([]byte, 0, len(data)+4)
	frame = append(frame, StartByte, CmdClientSend, byte(len(data)))
	frame = append(frame, data...)
	frame = append(frame, EndByte)
	return frame, nil
}
