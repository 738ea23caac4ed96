// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// fakePort serves scripted input and records everything written.
// Reads return (0, nil) once the input is exhausted, like a serial port timeout.
type fakePort struct {
	in       []byte
	out      bytes.Buffer
	timeouts []time.Duration
	readErr  error
	chunk    int
}

func newFakePort(in ...byte) *fakePort {
	return &fakePort{in: in}
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.in) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, nil
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	n = copy(b[:n], p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.out.Write(b)
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) feed(b ...byte) {
	p.in = append(p.in, b...)
}

// ============================================================
// Frame Reader Tests
// ============================================================

func TestFrameReader_WaitForBytesTimeout(t *testing.T) {
	port := newFakePort(0x01, 0x02)
	r := NewFrameReader(port)

	err := r.WaitForBytes(3, 5*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if r.Buffered() != 2 {
		t.Errorf("partial bytes must stay buffered, got %d", r.Buffered())
	}

	port.feed(0x03)
	got, err := r.ReadBytes(3, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("got % X", got)
	}
}

func TestFrameReader_ZeroTimeoutMakesOneAttempt(t *testing.T) {
	port := newFakePort(0xAA)
	r := NewFrameReader(port)

	b, err := r.Next(0)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b != 0xAA {
		t.Errorf("got 0x%02X", b)
	}
	if len(port.timeouts) == 0 || port.timeouts[0] != 0 {
		t.Errorf("expected a zero read timeout, got %v", port.timeouts)
	}
}

func TestFrameReader_ReadIntoDoesNotConsumeOnTimeout(t *testing.T) {
	r := NewFrameReader(newFakePort(0x10, 0x20))
	dst := make([]byte, 4)
	if err := r.ReadInto(dst, time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if r.Buffered() != 2 {
		t.Errorf("expected 2 buffered bytes, got %d", r.Buffered())
	}
}

func TestFrameReader_SkipTo(t *testing.T) {
	r := NewFrameReader(newFakePort(0x00, 0x11, StartByte, 0x01))
	if err := r.Fill(0); err != nil {
		t.Fatal(err)
	}

	skipped, found := r.SkipTo(StartByte)
	if !found || skipped != 2 {
		t.Fatalf("SkipTo = (%d, %v), want (2, true)", skipped, found)
	}
	if r.Buffered() != 1 {
		t.Errorf("expected command byte buffered, got %d", r.Buffered())
	}

	skipped, found = r.SkipTo(StartByte)
	if found || skipped != 1 {
		t.Errorf("SkipTo = (%d, %v), want (1, false)", skipped, found)
	}
	if r.Buffered() != 0 {
		t.Errorf("buffer should be empty, got %d", r.Buffered())
	}
}

func TestFrameReader_WaitBeyondCapacity(t *testing.T) {
	r := NewFrameReader(newFakePort())
	if err := r.WaitForBytes(readerBufferSize+1, 0); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestFrameReader_ChunkedReads(t *testing.T) {
	port := newFakePort([]byte("hello world")...)
	port.chunk = 3
	r := NewFrameReader(port)

	got, err := r.ReadBytes(11, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestFrameReader_TransportError(t *testing.T) {
	port := newFakePort()
	port.readErr = io.EOF
	r := NewFrameReader(port)
	if err := r.Fill(time.Millisecond); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeCommand(t *testing.T) {
	frame, err := EncodeCommand(CmdFeatures, 0x02)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFC, 0x01, 0x02, 0xFD}
	if !bytes.Equal(frame, want) {
		t.Errorf("got % X, want % X", frame, want)
	}

	if _, err := EncodeCommand(CmdFeatures, EndByte); !errors.Is(err, ErrReservedByte) {
		t.Errorf("reserved param: expected ErrReservedByte, got %v", err)
	}
	if _, err := EncodeCommand(StartByte, 0); !errors.Is(err, ErrReservedByte) {
		t.Errorf("reserved cmd: expected ErrReservedByte, got %v", err)
	}
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		cmd     uint8
		payload []byte
		want    []byte
		wantErr error
	}{
		{
			name:    "json",
			cmd:     CmdFuncJSON,
			payload: []byte(`{"a":1}`),
			want:    append(append([]byte{0xFC, 0x02, 0xFE}, []byte(`{"a":1}`)...), 0xFF, 0xFD),
		},
		{
			name:    "empty",
			cmd:     CmdPublishTele,
			payload: nil,
			want:    []byte{0xFC, 0x06, 0xFE, 0xFF, 0xFD},
		},
		{
			name:    "max size",
			cmd:     CmdExecuteCmnd,
			payload: bytes.Repeat([]byte{'x'}, MaxPayloadSize),
			want:    append(append([]byte{0xFC, 0x07, 0xFE}, bytes.Repeat([]byte{'x'}, MaxPayloadSize)...), 0xFF, 0xFD),
		},
		{
			name:    "too large",
			cmd:     CmdExecuteCmnd,
			payload: bytes.Repeat([]byte{'x'}, MaxPayloadSize+1),
			wantErr: ErrPayloadTooLarge,
		},
		{
			name:    "reserved byte",
			cmd:     CmdFuncJSON,
			payload: []byte{'a', 0xFD, 'b'},
			wantErr: ErrReservedByte,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePayload(tt.cmd, tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncodeClientSend(t *testing.T) {
	frame, err := EncodeClientSend([]byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFC, 0x05, 0x03, 'a', 'b', 'c', 0xFD}
	if !bytes.Equal(frame, want) {
		t.Errorf("got % X, want % X", frame, want)
	}
	if _, err := EncodeClientSend(make([]byte, 256)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncodeRequest(t *testing.T) {
	if got := EncodeRequest(CmdFuncEverySecond); !bytes.Equal(got, []byte{0xFC, 0x03, 0xFD}) {
		t.Errorf("got % X", got)
	}
}

// ============================================================
// Registry Tests
// ============================================================

func TestFeatureBits(t *testing.T) {
	tests := []struct {
		kind Kind
		bit  Features
	}{
		{KindFuncJSON, 0x02},
		{KindEverySecond, 0x04},
		{KindEvery100ms, 0x08},
		{KindCommandSend, 0x10},
	}
	for _, tt := range tests {
		if got := tt.kind.Feature(); got != tt.bit {
			t.Errorf("%s: got 0x%02X, want 0x%02X", tt.kind, got, tt.bit)
		}
	}
}

func TestFeaturesString(t *testing.T) {
	if got := Features(0).String(); got != "none" {
		t.Errorf("got %q", got)
	}
	if got := (FeatureFuncJSON | FeatureCommandSend).String(); got != "FUNC_JSON|CLIENT_SEND" {
		t.Errorf("got %q", got)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatCommand(t *testing.T) {
	for cmd := uint8(CmdFeatures); cmd <= CmdExecuteCmnd; cmd++ {
		name := FormatCommand(cmd)
		if name == "UNKNOWN" {
			t.Errorf("0x%02X has no name", cmd)
		}
		back, ok := ParseCommand(name)
		if !ok || back != cmd {
			t.Errorf("ParseCommand(%q) = (0x%02X, %v)", name, back, ok)
		}
	}
	if FormatCommand(0x42) != "UNKNOWN" {
		t.Error("0x42 should be UNKNOWN")
	}
	if _, ok := ParseCommand("bogus"); ok {
		t.Error("ParseCommand accepted bogus name")
	}
}

func TestFormatPayload(t *testing.T) {
	if got := FormatPayload([]byte("Power ON")); got != `"Power ON"` {
		t.Errorf("got %s", got)
	}
	if got := FormatPayload([]byte{0x00, 0x9F}); got != "00 9F" {
		t.Errorf("got %s", got)
	}
	if got := FormatPayload(nil); got != `""` {
		t.Errorf("got %s", got)
	}
}

func TestFormatFrame(t *testing.T) {
	f := &Frame{Command: CmdFeatures, Param: 0x12}
	got := FormatFrame(f)
	want := "[--:--:--.---] FEATURES (0x01) features=FUNC_JSON|CLIENT_SEND (0x12)"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(nil)
	s.Update(frameErr(CmdClientSend, ErrTimeout))
	s.Update(frameErr(CmdClientSend, ErrOverflow))
	s.Update(frameErr(0x42, ErrUnknownCommand))
	s.Update(frameErr(CmdFeatures, ErrFraming))
	s.Update(errors.New("other"))
	s.AddNoise(3)

	snap := s.Snapshot()
	if snap.TotalFrames != 6 || snap.ValidFrames != 1 {
		t.Errorf("totals: %d/%d", snap.ValidFrames, snap.TotalFrames)
	}
	if snap.Timeouts != 1 || snap.Overflows != 1 || snap.UnknownCommands != 1 ||
		snap.FramingErrors != 1 || snap.DecodeErrors != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.NoiseBytes != 3 {
		t.Errorf("noise: %d", snap.NoiseBytes)
	}
	if s.Errors() != 5 {
		t.Errorf("errors: %d", s.Errors())
	}

	s.Reset()
	if s.Snapshot().TotalFrames != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable(nil) || !IsRecoverable(ErrTimeout) || !IsRecoverable(frameErr(1, ErrFraming)) {
		t.Error("protocol errors must be recoverable")
	}
	if IsRecoverable(io.EOF) || IsRecoverable(ErrNotInitialized) {
		t.Error("transport errors must not be recoverable")
	}
}
