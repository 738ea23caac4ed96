// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := "--:--:--.---"
	if !f.Timestamp.IsZero() {
		timestamp = f.Timestamp.Format("15:04:05.000")
	}
	cmdName := FormatCommand(f.Command)

	if !f.HasPayload {
		if f.Command == CmdFeatures {
			return fmt.Sprintf("[%s] %s (0x%02X) features=%s (0x%02X)", timestamp, cmdName, f.Command, f.Features(), f.Param)
		}
		return fmt.Sprintf("[%s] %s (0x%02X) param=0x%02X", timestamp, cmdName, f.Command, f.Param)
	}
	return fmt.Sprintf("[%s] %s (0x%02X) len=%d %s", timestamp, cmdName, f.Command, len(f.Payload), FormatPayload(f.Payload))
}

// FormatRequest formats a host request, which carries no param byte
func FormatRequest(f *Frame) string {
	timestamp := "--:--:--.---"
	if !f.Timestamp.IsZero() {
		timestamp = f.Timestamp.Format("15:04:05.000")
	}
	cmdName := FormatCommand(f.Command)
	if f.HasPayload {
		return fmt.Sprintf("[%s] %s (0x%02X) len=%d %s", timestamp, cmdName, f.Command, len(f.Payload), FormatPayload(f.Payload))
	}
	return fmt.Sprintf("[%s] %s (0x%02X)", timestamp, cmdName, f.Command)
}

// FormatCommand returns the human-readable name for a command id
func FormatCommand(cmd uint8) string {
	switch cmd {
	case CmdFeatures:
		return "FEATURES"
	case CmdFuncJSON:
		return "FUNC_JSON"
	case CmdFuncEverySecond:
		return "FUNC_EVERY_SECOND"
	case CmdFuncEvery100ms:
		return "FUNC_EVERY_100_MSECOND"
	case CmdClientSend:
		return "CLIENT_SEND"
	case CmdPublishTele:
		return "PUBLISH_TELE"
	case CmdExecuteCmnd:
		return "EXECUTE_CMND"
	default:
		return "UNKNOWN"
	}
}

// ParseCommand maps a command name (case-insensitive) back to its id
func ParseCommand(name string) (uint8, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for cmd := uint8(CmdFeatures); cmd <= CmdExecuteCmnd; cmd++ {
		if FormatCommand(cmd) == name {
			return cmd, true
		}
	}
	return 0, false
}

// FormatPayload quotes printable text and hex-dumps anything else
func FormatPayload(p []byte) string {
	if len(p) == 0 {
		return `""`
	}
	if utf8.Valid(p) && isPrintable(p) {
		return fmt.Sprintf("%q", p)
	}
	return FormatHex(p)
}

// FormatHex formats bytes as space-separated hex pairs
func FormatHex(p []byte) string {
	var sb strings.Builder
	for i, b := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func isPrintable(p []byte) bool {
	for _, r := range string(p) {
		if r < 0x20 && r != '\t' {
			return false
		}
		if r == 0x7F {
			return false
		}
	}
	return true
}
