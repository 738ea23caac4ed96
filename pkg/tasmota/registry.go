// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import "strings"

// Kind identifies one of the optional callback slots.
// Its value equals the command id that triggers it.
type Kind uint8

// Callback kinds
const (
	KindFuncJSON    Kind = CmdFuncJSON
	KindEverySecond Kind = CmdFuncEverySecond
	KindEvery100ms  Kind = CmdFuncEvery100ms
	KindCommandSend Kind = CmdClientSend
)

// Kinds lists the callback kinds in bit order.
var Kinds = []Kind{KindFuncJSON, KindEverySecond, KindEvery100ms, KindCommandSend}

// Feature returns the feature bit reported for k.
func (k Kind) Feature() Features {
	return Features(1) << (k - 1)
}

// String returns the command name of k.
func (k Kind) String() string {
	return FormatCommand(uint8(k))
}

// Features is the bitmask sent in a FEATURES reply.
// Bit n-1 is set when the handler for command id n is attached; bit 0 is unused.
type Features uint8

// Feature bits
const (
	FeatureFuncJSON    = Features(1) << (CmdFuncJSON - 1)
	FeatureEverySecond = Features(1) << (CmdFuncEverySecond - 1)
	FeatureEvery100ms  = Features(1) << (CmdFuncEvery100ms - 1)
	FeatureCommandSend = Features(1) << (CmdClientSend - 1)
)

// Has reports whether the bit for k is set.
func (f Features) Has(k Kind) bool {
	return f&k.Feature() != 0
}

// String lists the set feature names, e.g. "FUNC_JSON|CLIENT_SEND".
func (f Features) String() string {
	var names []string
	for _, k := range Kinds {
		if f.Has(k) {
			names = append(names, k.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Handlers holds at most one handler per kind. A nil slot is unregistered.
type Handlers struct {
	funcJSON    func()
	everySecond func()
	every100ms  func()
	commandSend func(string)
}

// Features computes the bitmask of currently attached kinds.
func (h *Handlers) Features() Features {
	var f Features
	if h.funcJSON != nil {
		f |= FeatureFuncJSON
	}
	if h.everySecond != nil {
		f |= FeatureEverySecond
	}
	if h.every100ms != nil {
		f |= FeatureEvery100ms
	}
	if h.commandSend != nil {
		f |= FeatureCommandSend
	}
	return f
}

// tick returns the handler for a tick-style kind.
func (h *Handlers) tick(cmd uint8) func() {
	switch cmd {
	case CmdFuncJSON:
		return h.funcJSON
	case CmdFuncEverySecond:
		return h.everySecond
	case CmdFuncEvery100ms:
		return h.every100ms
	}
	return nil
}
