// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"fmt"
	"os"
	"time"
)

// FrameReader buffers bytes from a Port and hands them out all-or-nothing.
//
// The buffer is fixed; the reader never asks the port for more than it can hold.
// Waits are bounded by a caller-supplied timeout and are the only point where a
// FrameReader blocks.
type FrameReader struct {
	port  Port
	buf   [readerBufferSize]byte
	start int
	end   int
}

// NewFrameReader creates a reader over port.
func NewFrameReader(port Port) *FrameReader {
	return &FrameReader{port: port}
}

// Buffered returns the number of bytes read from the port but not yet consumed.
func (r *FrameReader) Buffered() int {
	return r.end - r.start
}

// Fill makes one read attempt, waiting at most timeout for data.
// A timeout is not an error; Fill returns nil and buffers nothing.
func (r *FrameReader) Fill(timeout time.Duration) error {
	if r.start > 0 && r.end == len(r.buf) {
		r.compact()
	}
	if r.end == len(r.buf) {
		return nil
	}
	if timeout < 0 {
		timeout = 0
	}
	if err := r.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	n, err := r.port.Read(r.buf[r.end:])
	r.end += n
	if err != nil {
		if os.IsTimeout(err) {
			return nil
		}
		return err
	}
	return nil
}

// WaitForBytes waits until at least count bytes are buffered.
// It returns ErrTimeout if they do not arrive within timeout; nothing is consumed
// either way. At least one read attempt is made even with a zero timeout.
func (r *FrameReader) WaitForBytes(count int, timeout time.Duration) error {
	if count > len(r.buf) {
		return fmt.Errorf("wait for %d bytes: %w", count, ErrOverflow)
	}
	deadline := time.Now().Add(timeout)
	for r.Buffered() < count {
		if r.start > 0 && len(r.buf)-r.start < count {
			r.compact()
		}
		if err := r.Fill(time.Until(deadline)); err != nil {
			return err
		}
		if r.Buffered() >= count {
			break
		}
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
	}
	return nil
}

// ReadInto waits for len(dst) bytes and consumes exactly that many into dst.
func (r *FrameReader) ReadInto(dst []byte, timeout time.Duration) error {
	if err := r.WaitForBytes(len(dst), timeout); err != nil {
		return err
	}
	r.start += copy(dst, r.buf[r.start:r.end])
	r.reclaim()
	return nil
}

// ReadBytes waits for count bytes and returns a copy of them.
func (r *FrameReader) ReadBytes(count int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, count)
	if err := r.ReadInto(out, timeout); err != nil {
		return nil, err
	}
	return out, nil
}

// Next waits for one byte and consumes it.
func (r *FrameReader) Next(timeout time.Duration) (byte, error) {
	b, err := r.PeekByte(timeout)
	if err != nil {
		return 0, err
	}
	r.start++
	r.reclaim()
	return b, nil
}

// PeekByte waits for one byte without consuming it.
func (r *FrameReader) PeekByte(timeout time.Duration) (byte, error) {
	if err := r.WaitForBytes(1, timeout); err != nil {
		return 0, err
	}
	return r.buf[r.start], nil
}

// Discard drops up to n buffered bytes and returns how many were dropped.
func (r *FrameReader) Discard(n int) int {
	if n > r.Buffered() {
		n = r.Buffered()
	}
	r.start += n
	r.reclaim()
	return n
}

// SkipTo drops buffered bytes up to and including the first marker.
// It returns the number of bytes dropped before the marker and whether it was found.
func (r *FrameReader) SkipTo(marker byte) (skipped int, found bool) {
	for i := r.start; i < r.end; i++ {
		if r.buf[i] == marker {
			skipped = i - r.start
			r.start = i + 1
			r.reclaim()
			return skipped, true
		}
	}
	skipped = r.Buffered()
	r.start, r.end = 0, 0
	return skipped, false
}

func (r *FrameReader) reclaim() {
	if r.start == r.end {
		r.start, r.end = 0, 0
	}
}

func (r *FrameReader) compact() {
	n := copy(r.buf[:], r.buf[r.start:r.end])
	r.start, r.end = 0, n
}
