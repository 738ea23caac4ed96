// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tasmota

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startClient runs a client on one end of a pipe until the test ends.
func startClient(t *testing.T, setup func(c *Client)) (*PipePort, *Client) {
	t.Helper()
	hostEnd, clientEnd := Pipe()
	c := NewClient(clientEnd, WithReadTimeout(50*time.Millisecond), WithIdleTimeout(5*time.Millisecond))
	setup(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = hostEnd.Close()
	})
	return hostEnd, c
}

func TestPipe_Timeouts(t *testing.T) {
	a, b := Pipe()

	require.NoError(t, a.SetReadTimeout(0))
	n, err := a.Read(make([]byte, 4))
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, a.SetReadTimeout(10*time.Millisecond))
	start := time.Now()
	n, err = a.Read(make([]byte, 4))
	require.NoError(t, err)
	require.Zero(t, n)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	_, err = b.Write([]byte("hi"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err = a.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))

	require.NoError(t, b.Close())
	_, err = a.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	_, err = a.Write([]byte("x"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestHost_QueryFeatures(t *testing.T) {
	hostEnd, _ := startClient(t, func(c *Client) {
		c.AttachFuncJSON(func() {})
		c.AttachCommandSend(func(string) {})
	})
	h := NewHost(hostEnd)

	features, err := h.QueryFeatures(time.Second)
	require.NoError(t, err)
	require.Equal(t, FeatureFuncJSON|FeatureCommandSend, features)

	got, known := h.Features()
	require.True(t, known)
	require.Equal(t, features, got)
}

func TestHost_RequestJSON(t *testing.T) {
	hostEnd, _ := startClient(t, func(c *Client) {
		c.AttachFuncJSON(func() {
			_ = c.SendJSON(`{"Temp":21.5}`)
		})
	})
	h := NewHost(hostEnd)

	json, err := h.RequestJSON(time.Second)
	require.NoError(t, err)
	require.Equal(t, `{"Temp":21.5}`, json)
	require.Equal(t, uint64(1), h.Stats().Snapshot().ValidFrames)
}

func TestHost_ClientSendRoundTrip(t *testing.T) {
	received := make(chan string, 1)
	hostEnd, _ := startClient(t, func(c *Client) {
		c.AttachCommandSend(func(s string) {
			received <- s
			_ = c.ExecuteCommand("Power1 " + s)
		})
	})
	h := NewHost(hostEnd)

	var mu sync.Mutex
	var executed []string
	h.OnExecute = func(s string) {
		mu.Lock()
		executed = append(executed, s)
		mu.Unlock()
	}

	require.NoError(t, h.ClientSend("ON"))
	select {
	case s := <-received:
		require.Equal(t, "ON", s)
	case <-time.After(time.Second):
		t.Fatal("client never received CLIENT_SEND")
	}

	frame, err := h.ReadFrame(time.Second)
	require.NoError(t, err)
	require.Equal(t, uint8(CmdExecuteCmnd), frame.Command)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Power1 ON"}, executed)
}

func TestHost_ReadFrameTimeout(t *testing.T) {
	hostEnd, _ := Pipe()
	h := NewHost(hostEnd)
	_, err := h.ReadFrame(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestHost_ReadFrameKeepsPartialFrame(t *testing.T) {
	hostEnd, moduleEnd := Pipe()
	h := NewHost(hostEnd)

	_, err := moduleEnd.Write([]byte{0xFC, 0x06, 0xFE, 'a'})
	require.NoError(t, err)
	_, err = h.ReadFrame(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	_, err = moduleEnd.Write([]byte{'b', 0xFF, 0xFD})
	require.NoError(t, err)
	frame, err := h.ReadFrame(time.Second)
	require.NoError(t, err)
	require.Equal(t, "ab", frame.Text())
}

func TestHost_ReadFrameReportsFramingErrors(t *testing.T) {
	hostEnd, moduleEnd := Pipe()
	h := NewHost(hostEnd)

	_, err := moduleEnd.Write([]byte{0xFC, 0x01, 0xFD, 0xFC, 0x01, 0x04, 0xFD})
	require.NoError(t, err)

	_, err = h.ReadFrame(time.Second)
	require.ErrorIs(t, err, ErrFraming)
	require.True(t, IsRecoverable(err))

	frame, err := h.ReadFrame(time.Second)
	require.NoError(t, err)
	require.Equal(t, FeatureEverySecond, frame.Features())
}

func TestHost_RunDrivesTicks(t *testing.T) {
	var mu sync.Mutex
	counts := map[string]int{}
	bump := func(k string) {
		mu.Lock()
		counts[k]++
		mu.Unlock()
	}

	hostEnd, _ := startClient(t, func(c *Client) {
		c.AttachEvery100ms(func() { bump("100ms") })
		c.AttachEverySecond(func() { bump("second") })
		c.AttachFuncJSON(func() {
			bump("json")
			_ = c.SendJSON(`{}`)
		})
	})

	h := NewHost(hostEnd,
		WithTickInterval(5*time.Millisecond),
		WithTelePeriod(20*time.Millisecond),
	)
	jsonSeen := make(chan struct{}, 16)
	h.OnJSON = func(string) { jsonSeen <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	select {
	case <-jsonSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("host never received FUNC_JSON reply")
	}
	cancel()
	require.True(t, errors.Is(<-done, context.Canceled))

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, counts["100ms"], 0)
	require.Greater(t, counts["json"], 0)
}

func TestHost_RunSkipsUnsupportedTicks(t *testing.T) {
	var seen []uint8

	hostEnd, moduleEnd := Pipe()
	h := NewHost(hostEnd, WithTickInterval(2*time.Millisecond), WithTelePeriod(4*time.Millisecond))

	// Report only CLIENT_SEND; no tick should follow.
	_, err := moduleEnd.Write([]byte{0xFC, 0x01, 0x10, 0xFD})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = h.Run(ctx)

	dec := NewRequestDecoder()
	buf := make([]byte, 256)
	require.NoError(t, moduleEnd.SetReadTimeout(0))
	for {
		n, err := moduleEnd.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		frames, _ := dec.Decode(buf[:n])
		for _, f := range frames {
			seen = append(seen, f.Command)
		}
	}

	require.NotEmpty(t, seen)
	for _, cmd := range seen {
		require.Equal(t, uint8(CmdFeatures), cmd, "unexpected %s", FormatCommand(cmd))
	}
}

func TestHost_RequestRejectsReserved(t *testing.T) {
	hostEnd, _ := Pipe()
	h := NewHost(hostEnd)
	require.ErrorIs(t, h.Request(EndByte), ErrReservedByte)
}
