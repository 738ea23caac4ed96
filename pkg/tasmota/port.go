// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"io"
	"sync"
	"time"
)

// Port is the byte transport beneath a link.
//
// Read follows go.bug.st/serial semantics: when the read timeout expires
// without data it returns (0, nil). A negative timeout blocks.
type Port interface {
	io.Reader
	io.Writer
	SetReadTimeout(t time.Duration) error
}

// PipePort is one end of an in-memory link created by Pipe.
type PipePort struct {
	rx *pipeBuffer
	tx *pipeBuffer

	mu      sync.Mutex
	timeout time.Duration
}

type pipeBuffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	notify chan struct{}
}

func newPipeBuffer() *pipeBuffer {
	return &pipeBuffer{notify: make(chan struct{}, 1)}
}

// Pipe creates a connected pair of ports. Bytes written to one are read from the other.
func Pipe() (*PipePort, *PipePort) {
	ab, ba := newPipeBuffer(), newPipeBuffer()
	a := &PipePort{rx: ba, tx: ab, timeout: -1}
	b := &PipePort{rx: ab, tx: ba, timeout: -1}
	return a, b
}

// SetReadTimeout implements Port.
func (p *PipePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

// Read implements io.Reader.
func (p *PipePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		p.rx.mu.Lock()
		if len(p.rx.data) > 0 {
			n := copy(b, p.rx.data)
			p.rx.data = p.rx.data[n:]
			p.rx.mu.Unlock()
			return n, nil
		}
		closed := p.rx.closed
		p.rx.mu.Unlock()

		if closed {
			return 0, io.EOF
		}
		if timeout == 0 {
			return 0, nil
		}

		select {
		case <-p.rx.notify:
		case <-expired:
			return 0, nil
		}
	}
}

// Write implements io.Writer.
func (p *PipePort) Write(b []byte) (int, error) {
	p.tx.mu.Lock()
	if p.tx.closed {
		p.tx.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	p.tx.data = append(p.tx.data, b...)
	p.tx.mu.Unlock()

	select {
	case p.tx.notify <- struct{}{}:
	default:
	}
	return len(b), nil
}

// Close closes both directions. Pending bytes remain readable by the peer.
func (p *PipePort) Close() error {
	for _, buf := range []*pipeBuffer{p.rx, p.tx} {
		buf.mu.Lock()
		buf.closed = true
		buf.mu.Unlock()
		select {
		case buf.notify <- struct{}{}:
		default:
		}
	}
	return nil
}
