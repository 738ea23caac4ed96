// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecoder_ParamFrame(t *testing.T) {
	d := NewDecoder()
	frames, errs := d.Decode([]byte{0xFC, 0x01, 0x12, 0xFD})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Command != CmdFeatures || f.Param != 0x12 || f.HasPayload {
		t.Errorf("unexpected frame: %+v", f)
	}
	if f.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestDecoder_PayloadFrame(t *testing.T) {
	d := NewDecoder()
	frames, errs := d.Decode([]byte{0xFC, 0x06, 0xFE, 'h', 'i', 0xFF, 0xFD})
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	if frames[0].Text() != "hi" || !frames[0].HasPayload {
		t.Errorf("unexpected frame: %+v", frames[0])
	}
}

func TestDecoder_EmptyPayload(t *testing.T) {
	d := NewDecoder()
	frames, _ := d.Decode([]byte{0xFC, 0x02, 0xFE, 0xFF, 0xFD})
	if len(frames) != 1 || !frames[0].HasPayload || len(frames[0].Payload) != 0 {
		t.Fatalf("unexpected result: %v", frames)
	}
}

func TestDecoder_NoiseAndResync(t *testing.T) {
	d := NewDecoder()
	frames, errs := d.Decode([]byte{0x00, 0x11, 0xFC, 0x03, 0x00, 0xFD})
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	if d.Noise() != 2 {
		t.Errorf("expected 2 noise bytes, got %d", d.Noise())
	}
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
		frames  int
	}{
		{"start restarts frame", []byte{0xFC, 0x06, 0xFE, 'a', 0xFC, 0x01, 0x00, 0xFD}, ErrFraming, 1},
		{"marker as command", []byte{0xFC, 0xFE}, ErrFraming, 0},
		{"end as param", []byte{0xFC, 0x01, 0xFD}, ErrFraming, 0},
		{"wrong end", []byte{0xFC, 0x01, 0x00, 0x00}, ErrFraming, 0},
		{"end inside payload", []byte{0xFC, 0x02, 0xFE, 'a', 0xFD}, ErrFraming, 0},
		{"payload overflow", append(append([]byte{0xFC, 0x02, 0xFE}, bytes.Repeat([]byte{'a'}, MaxPayloadSize+1)...), 0xFF, 0xFD), ErrOverflow, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			frames, errs := d.Decode(tt.input)
			if len(errs) == 0 {
				t.Fatal("expected an error")
			}
			if !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, errs[0])
			}
			var fe *FrameError
			if !errors.As(errs[0], &fe) {
				t.Errorf("expected *FrameError, got %T", errs[0])
			}
			if len(frames) != tt.frames {
				t.Errorf("expected %d frames, got %d", tt.frames, len(frames))
			}
		})
	}
}

func TestDecoder_Requests(t *testing.T) {
	d := NewRequestDecoder()
	send, _ := EncodeClientSend([]byte{'a', 0xFD, 'b'})
	input := append(EncodeRequest(CmdFeatures), send...)
	input = append(input, EncodeRequest(CmdFuncEvery100ms)...)
	input = append(input, 0xFC, 0x05, 0x00, 0xFD)

	frames, errs := d.Decode(input)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(frames))
	}
	if frames[0].Command != CmdFeatures || frames[0].HasPayload {
		t.Errorf("frame 0: %+v", frames[0])
	}
	if !bytes.Equal(frames[1].Payload, []byte{'a', 0xFD, 'b'}) {
		t.Errorf("frame 1 payload: % X", frames[1].Payload)
	}
	if frames[2].Command != CmdFuncEvery100ms {
		t.Errorf("frame 2: %+v", frames[2])
	}
	if !frames[3].HasPayload || len(frames[3].Payload) != 0 {
		t.Errorf("frame 3: %+v", frames[3])
	}
}

func TestDecoder_RequestsMarkerSizes(t *testing.T) {
	// Sizes 252..255 put a marker value in the size byte
	for size := 0xFC; size <= MaxPayloadSize; size++ {
		data := bytes.Repeat([]byte{'a'}, size)
		frame, err := EncodeClientSend(data)
		if err != nil {
			t.Fatalf("size %d: encode: %v", size, err)
		}

		frames, errs := NewRequestDecoder().Decode(frame)
		if len(errs) != 0 {
			t.Fatalf("size %d: unexpected errors: %v", size, errs)
		}
		if len(frames) != 1 {
			t.Fatalf("size %d: expected 1 frame, got %d", size, len(frames))
		}
		if frames[0].Command != CmdClientSend || !bytes.Equal(frames[0].Payload, data) {
			t.Errorf("size %d: got command 0x%02X with %d bytes", size, frames[0].Command, len(frames[0].Payload))
		}
	}
}

func TestDecoder_RawBytes(t *testing.T) {
	d := NewDecoder()
	d.Decode([]byte{0xFC, 0x02, 0xFE, 'x'})
	if !bytes.Equal(d.RawBytes(), []byte{0xFC, 0x02, 0xFE, 'x'}) {
		t.Errorf("got % X", d.RawBytes())
	}
	d.Reset()
	if len(d.RawBytes()) != 0 {
		t.Error("Reset did not clear raw bytes")
	}
}

func TestFrame_BytesRoundTrip(t *testing.T) {
	frames := []*Frame{
		{Command: CmdFeatures, Param: 0x1E},
		{Command: CmdFuncJSON, HasPayload: true, Payload: []byte(`{"Temp":21.5}`)},
		{Command: CmdExecuteCmnd, HasPayload: true, Payload: []byte("Power1 Toggle")},
	}
	for _, f := range frames {
		wire, err := f.Bytes()
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		got, errs := NewDecoder().Decode(wire)
		if len(errs) != 0 || len(got) != 1 {
			t.Fatalf("%s: frames=%d errs=%v", f, len(got), errs)
		}
		if got[0].Command != f.Command || got[0].Param != f.Param || !bytes.Equal(got[0].Payload, f.Payload) {
			t.Errorf("round trip mismatch: %s vs %s", got[0], f)
		}
	}
}
