// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw link traffic as a CBOR sequence.
//
// Each record is a CBOR map {1: unix-nanos, 2: direction, 3: bytes}. A capture
// file is the concatenation of records with no header, so files written by an
// interrupted session remain readable up to the last complete record.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

// Record is one chunk of bytes observed on the link
type Record struct {
	At        int64             `cbor:"1,keyasint"`
	Direction tasmota.Direction `cbor:"2,keyasint"`
	Data      []byte            `cbor:"3,keyasint"`
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.Unix(0, r.At)
}

// NewRecord stamps data with the current time
func NewRecord(dir tasmota.Direction, data []byte) Record {
	return Record{
		At:        time.Now().UnixNano(),
		Direction: dir,
		Data:      append([]byte(nil), data...),
	}
}

// Writer appends records to an underlying stream. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	n   int
}

// NewWriter creates a writer over w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: cbor.NewEncoder(w)}
}

// Write appends one record
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Reader reads records back from a capture stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
// A record cut short by the end of the stream is reported as io.ErrUnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}

// ReadAll returns every record in the stream
func (r *Reader) ReadAll() ([]Record, error) {
	var recs []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// Recorder is an io.Reader that records every chunk it returns
type Recorder struct {
	r   io.Reader
	w   *Writer
	dir tasmota.Direction
	err error
}

// NewRecorder wraps r, recording chunks as coming from dir
func NewRecorder(r io.Reader, w *Writer, dir tasmota.Direction) *Recorder {
	return &Recorder{r: r, w: w, dir: dir}
}

// Read implements io.Reader
func (rc *Recorder) Read(p []byte) (int, error) {
	n, err := rc.r.Read(p)
	if n > 0 && rc.err == nil {
		rc.err = rc.w.Write(NewRecord(rc.dir, p[:n]))
	}
	return n, err
}

// Err returns the first error encountered while recording
func (rc *Recorder) Err() error {
	return rc.err
}

// Port records both directions of a tasmota.Port
type Port struct {
	port tasmota.Port
	w    *Writer
	in   tasmota.Direction
	out  tasmota.Direction
}

// WrapPort records reads from port as in and writes to it as out
func WrapPort(port tasmota.Port, w *Writer, in, out tasmota.Direction) *Port {
	return &Port{port: port, w: w, in: in, out: out}
}

// Read implements tasmota.Port
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n > 0 {
		if werr := p.w.Write(NewRecord(p.in, b[:n])); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

// Write implements tasmota.Port
func (p *Port) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	if n > 0 {
		if werr := p.w.Write(NewRecord(p.out, b[:n])); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

// SetReadTimeout implements tasmota.Port
func (p *Port) SetReadTimeout(t time.Duration) error {
	return p.port.SetReadTimeout(t)
}

// Replay feeds the records through per-direction decoders and calls fn for
// every decoded frame or decode error, in stream order.
func Replay(r *Reader, fn func(rec Record, frame *tasmota.Frame, err error)) error {
	decoders := map[tasmota.Direction]*tasmota.Decoder{
		tasmota.FromModule: tasmota.NewDecoder(),
		tasmota.FromHost:   tasmota.NewRequestDecoder(),
	}
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		dec, ok := decoders[rec.Direction]
		if !ok {
			return fmt.Errorf("record has unknown direction %d", rec.Direction)
		}
		for _, b := range rec.Data {
			frame, derr := dec.DecodeByte(b)
			if frame != nil {
				frame.Timestamp = rec.Time()
			}
			if derr != nil || frame != nil {
				fn(rec, frame, derr)
			}
		}
	}
}
