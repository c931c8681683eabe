package discord

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu           sync.Mutex
	speaking     []bool
	disconnected bool
}

func (f *fakeConn) Speaking(b bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaking = append(f.speaking, b)
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

// fakeFFmpeg writes a shell script that ignores its arguments and runs body.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestDecodePCM(t *testing.T) {
	pcm := make([]byte, 8)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(1000))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(0xFFFF)) // -1
	binary.LittleEndian.PutUint16(pcm[4:], uint16(0x8000)) // MinInt16
	binary.LittleEndian.PutUint16(pcm[6:], uint16(0x7FFF)) // MaxInt16

	samples := make([]int16, 4)
	decodePCM(pcm, samples)
	assert.Equal(t, []int16{1000, -1, math.MinInt16, math.MaxInt16}, samples)
}

func TestScalePCM(t *testing.T) {
	tests := []struct {
		name   string
		in     []int16
		volume float64
		want   []int16
	}{
		{name: "unity", in: []int16{100, -100}, volume: 1, want: []int16{100, -100}},
		{name: "half", in: []int16{100, -100}, volume: 0.5, want: []int16{50, -50}},
		{name: "mute", in: []int16{100, -100}, volume: 0, want: []int16{0, 0}},
		{name: "clips", in: []int16{30000, -30000}, volume: 2, want: []int16{math.MaxInt16, math.MinInt16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := append([]int16(nil), tt.in...)
			scalePCM(samples, tt.volume)
			assert.Equal(t, tt.want, samples)
		})
	}
}

func TestVoiceTransport_PlaysToEnd(t *testing.T) {
	ffmpeg := fakeFFmpeg(t, "head -c 7680 /dev/zero")
	conn := &fakeConn{}
	send := make(chan []byte, 8)
	tr := newVoiceTransport(conn, send, ffmpeg)

	done := make(chan error, 1)
	require.NoError(t, tr.Play("song.mp3", 0.5, func(err error) { done <- err }))
	assert.InDelta(t, 0.5, tr.Volume(), 0.0001)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("done was not called")
	}
	assert.Len(t, send, 2)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, []bool{true, false}, conn.speaking)
}

func TestVoiceTransport_ReportsDecoderFailure(t *testing.T) {
	ffmpeg := fakeFFmpeg(t, "exit 1")
	tr := newVoiceTransport(&fakeConn{}, make(chan []byte, 8), ffmpeg)

	done := make(chan error, 1)
	require.NoError(t, tr.Play("missing.mp3", 1, func(err error) { done <- err }))

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("done was not called")
	}
}

func TestVoiceTransport_MissingBinary(t *testing.T) {
	tr := newVoiceTransport(&fakeConn{}, make(chan []byte, 1), filepath.Join(t.TempDir(), "no-ffmpeg"))
	called := false
	err := tr.Play("song.mp3", 1, func(error) { called = true })
	assert.Error(t, err)
	assert.False(t, called)
}

func TestVoiceTransport_StopSuppressesDone(t *testing.T) {
	ffmpeg := fakeFFmpeg(t, "exec cat /dev/zero")
	send := make(chan []byte, 1)
	tr := newVoiceTransport(&fakeConn{}, send, ffmpeg)

	done := make(chan error, 1)
	require.NoError(t, tr.Play("song.mp3", 1, func(err error) { done <- err }))
	select {
	case <-send:
	case <-time.After(5 * time.Second):
		t.Fatal("no audio was sent")
	}

	assert.True(t, tr.Pause())
	assert.False(t, tr.Pause(), "already paused")
	assert.True(t, tr.Resume())
	assert.False(t, tr.Resume(), "not paused")

	tr.Stop()
	select {
	case err := <-done:
		t.Fatalf("done called after Stop: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	assert.False(t, tr.Pause(), "nothing is playing")
}

func TestVoiceTransport_Close(t *testing.T) {
	conn := &fakeConn{}
	tr := newVoiceTransport(conn, make(chan []byte, 1), "ffmpeg")
	closed := 0
	tr.onClose = func() { closed++ }

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, closed)
	assert.True(t, conn.disconnected)
	assert.Error(t, tr.Play("song.mp3", 1, func(error) {}))
}
