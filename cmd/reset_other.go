// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package cmd

import (
	"errors"
	"time"
)

func pulseReset(chip string, offset int, pulse time.Duration) error {
	return errors.New("GPIO reset is only supported on linux")
}
