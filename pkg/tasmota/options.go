// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds link configuration shared by Client and Host.
type Config struct {
	// ReadTimeout bounds each wait for the bytes of a frame in progress.
	ReadTimeout time.Duration

	// PollTimeout is how long Loop waits for a start marker. Zero makes Loop non-blocking.
	PollTimeout time.Duration

	// IdleTimeout is how long Run waits for data after an empty loop iteration.
	IdleTimeout time.Duration

	// TickInterval is the host's fast tick (FUNC_EVERY_100_MSECOND cadence).
	TickInterval time.Duration

	// TelePeriod is how often the host requests FUNC_JSON.
	TelePeriod time.Duration

	// Logger receives debug traces of frame handling.
	Logger zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		ReadTimeout:  50 * time.Millisecond,
		PollTimeout:  0,
		IdleTimeout:  10 * time.Millisecond,
		TickInterval: 100 * time.Millisecond,
		TelePeriod:   300 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

// Option is a functional option for configuring a Client or Host.
type Option func(*Config)

// WithReadTimeout sets the per-wait timeout for frame bytes.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithPollTimeout sets how long Loop may wait for a start marker.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PollTimeout = d
	}
}

// WithIdleTimeout sets how long Run waits for data between empty iterations.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.IdleTimeout = d
	}
}

// WithTickInterval sets the host's fast tick.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) {
		c.TickInterval = d
	}
}

// WithTelePeriod sets how often the host requests FUNC_JSON.
func WithTelePeriod(d time.Duration) Option {
	return func(c *Config) {
		c.TelePeriod = d
	}
}

// WithLogger sets the logger.
//
// Example:
//
//	client := tasmota.NewClient(port, tasmota.WithLogger(log.Logger))
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
