// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package cmd

import (
	"fmt"
	"time"

	"github.com/warthog618/gpiod"
)

// pulseReset drives the reset line low for pulse, then releases it high
func pulseReset(chip string, offset int, pulse time.Duration) error {
	c, err := gpiod.NewChip(chip, gpiod.WithConsumer("tasmolink"))
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip: %w", err)
	}
	defer c.Close()

	line, err := c.RequestLine(offset, gpiod.AsOutput(1))
	if err != nil {
		return fmt.Errorf("failed to request reset line: %w", err)
	}
	defer line.Close()

	if err := line.SetValue(0); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}
	time.Sleep(pulse)
	if err := line.SetValue(1); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}
	return nil
}
