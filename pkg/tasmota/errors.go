// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates the expected bytes did not arrive in time.
	ErrTimeout = errors.New("timeout waiting for bytes")
	// ErrFraming indicates a marker was missing or out of place.
	ErrFraming = errors.New("framing mismatch")
	// ErrOverflow indicates a declared or actual payload exceeds the buffer.
	ErrOverflow = errors.New("payload exceeds buffer capacity")
	// ErrUnknownCommand indicates a command id outside the enumerated set.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotInitialized indicates no transport is bound.
	ErrNotInitialized = errors.New("not initialized")
	// ErrReservedByte indicates an outgoing param or payload holds a marker value.
	// The protocol defines no escaping, so such frames are refused.
	ErrReservedByte = errors.New("reserved marker byte in data")
	// ErrPayloadTooLarge indicates an outgoing payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// FrameError reports why a single frame was abandoned.
type FrameError struct {
	Command uint8
	Err     error
}

// Error implements error.
func (e *FrameError) Error() string {
	return fmt.Sprintf("%s (0x%02X) frame: %v", FormatCommand(e.Command), e.Command, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err is a protocol-level error the link
// recovers from by resynchronizing on the next start marker.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var fe *FrameError
	return errors.As(err, &fe) || errors.Is(err, ErrTimeout)
}

func frameErr(cmd uint8, err error) error {
	return &FrameError{Command: cmd, Err: err}
}
