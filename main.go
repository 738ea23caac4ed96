// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Tasmolink - TasmotaClient Serial Link Toolkit
//
// A CLI tool for emulating, driving and analyzing the TasmotaClient
// serial protocol between a Tasmota host and a microcontroller module.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/tasmolink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
