// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	Timeouts        uint64
	FramingErrors   uint64
	Overflows       uint64
	UnknownCommands uint64
	DecodeErrors    uint64
	NoiseBytes      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one frame
func (s *Statistics) Update(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalFrames++
	switch {
	case err == nil:
		s.ValidFrames++
	case errors.Is(err, ErrTimeout):
		s.Timeouts++
	case errors.Is(err, ErrOverflow):
		s.Overflows++
	case errors.Is(err, ErrUnknownCommand):
		s.UnknownCommands++
	case errors.Is(err, ErrFraming):
		s.FramingErrors++
	default:
		s.DecodeErrors++
	}
	s.LastUpdateTime = time.Now()
}

// AddNoise records bytes discarded outside any frame
func (s *Statistics) AddNoise(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.NoiseBytes += uint64(n)
	s.mu.Unlock()
}

// Errors returns the number of frames that failed
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors()
}

func (s *Statistics) errors() uint64 {
	return s.Timeouts + s.FramingErrors + s.Overflows + s.UnknownCommands + s.DecodeErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errors()) / elapsed
	}
}

// Snapshot returns a copy of the counters with rates filled in
func (s *Statistics) Snapshot() *Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return &Statistics{
		StartTime:       s.StartTime,
		LastUpdateTime:  s.LastUpdateTime,
		TotalFrames:     s.TotalFrames,
		ValidFrames:     s.ValidFrames,
		Timeouts:        s.Timeouts,
		FramingErrors:   s.FramingErrors,
		Overflows:       s.Overflows,
		UnknownCommands: s.UnknownCommands,
		DecodeErrors:    s.DecodeErrors,
		NoiseBytes:      s.NoiseBytes,
		FrameRate:       s.FrameRate,
		ErrorRate:       s.ErrorRate,
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, percent(snap.ValidFrames))

	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", snap.Timeouts, percent(snap.Timeouts))
	}
	if snap.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", snap.FramingErrors, percent(snap.FramingErrors))
	}
	if snap.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d (%.1f%%)\n", snap.Overflows, percent(snap.Overflows))
	}
	if snap.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d (%.1f%%)\n", snap.UnknownCommands, percent(snap.UnknownCommands))
	}
	if snap.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", snap.DecodeErrors, percent(snap.DecodeErrors))
	}
	if snap.NoiseBytes > 0 {
		result += fmt.Sprintf("Noise Bytes:     %8d\n", snap.NoiseBytes)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.Timeouts = 0
	s.FramingErrors = 0
	s.Overflows = 0
	s.UnknownCommands = 0
	s.DecodeErrors = 0
	s.NoiseBytes = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}
