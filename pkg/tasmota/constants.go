// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package tasmota implements the TasmotaClient serial protocol.
//
// The protocol links a microcontroller module to a Tasmota host over a single
// byte-oriented serial line. The host polls the module for its features, forwards
// timer ticks and command strings, and the module answers with feature reports,
// JSON, telemetry or command strings.
//
// Client implements the module side: a cooperative service loop that recognizes
// frames in the byte stream, enforces per-wait timeouts, and dispatches decoded
// commands to attached handlers. Host implements the Tasmota side. Decoder is a
// streaming decoder for either direction, used by the host, the sniffer and tests.
package tasmota

// LibVersion is the TasmotaClient library version this package speaks.
const LibVersion = 20191129

// Protocol framing bytes
const (
	StartByte      = 0xFC
	EndByte        = 0xFD
	ParamStartByte = 0xFE
	ParamEndByte   = 0xFF
)

// Command identifiers
const (
	CmdFeatures        = 0x01
	CmdFuncJSON        = 0x02
	CmdFuncEverySecond = 0x03
	CmdFuncEvery100ms  = 0x04
	CmdClientSend      = 0x05
	CmdPublishTele     = 0x06
	CmdExecuteCmnd     = 0x07
)

// Size limits
const (
	ReceiveBufferSize = 100 // client inbound CLIENT_SEND buffer
	MaxPayloadSize    = 255 // delimited payloads and CLIENT_SEND data
	readerBufferSize  = 512
)

// IsReserved reports whether b is one of the four marker values.
// Reserved bytes never appear inside a delimited payload.
func IsReserved(b byte) bool {
	return b >= StartByte
}

// IsKnownCommand reports whether cmd is one of the enumerated command ids.
func IsKnownCommand(cmd uint8) bool {
	return cmd >= CmdFeatures && cmd <= CmdExecuteCmnd
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateCommand
	stateParam
	statePayload
	stateSize
	stateData
	stateEnd
)
