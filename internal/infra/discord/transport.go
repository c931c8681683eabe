package discord

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // 20ms at 48kHz
	frameBytes = frameSize * channels * 2
	maxOpusLen = frameBytes
)

// voiceConn is the part of a voice connection the transport drives.
type voiceConn interface {
	Speaking(b bool) error
	Disconnect() error
}

// VoiceTransport decodes audio files with ffmpeg and sends them to a voice connection as opus frames.
type VoiceTransport struct {
	conn    voiceConn
	send    chan<- []byte
	ffmpeg  string
	onClose func()

	volume atomic.Uint64 // math.Float64bits

	mu     sync.Mutex
	cur    *stream
	closed bool
}

type stream struct {
	cancel context.CancelFunc
	paused bool
	resume chan struct{}
}

func newVoiceTransport(conn voiceConn, send chan<- []byte, ffmpegPath string) *VoiceTransport {
	t := &VoiceTransport{
		conn:   conn,
		send:   send,
		ffmpeg: ffmpegPath,
	}
	t.SetVolume(1)
	return t
}

// Play implements playback.Transport.
func (t *VoiceTransport) Play(path string, volume float64, done func(err error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("voice connection is closed")
	}
	if t.cur != nil {
		t.cur.cancel()
		t.cur = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-i", path,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "warning",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed to open ffmpeg output")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return errors.Wrapf(err, "failed to start %s", t.ffmpeg)
	}

	t.SetVolume(volume)
	s := &stream{cancel: cancel}
	t.cur = s
	go t.run(ctx, s, cmd, stdout, done)
	return nil
}

func (t *VoiceTransport) run(ctx context.Context, s *stream, cmd *exec.Cmd, stdout io.Reader, done func(err error)) {
	err := t.pump(ctx, s, stdout)
	if err != nil {
		// Unblock ffmpeg if it is still writing
		s.cancel()
	}
	if werr := cmd.Wait(); err == nil && werr != nil && ctx.Err() == nil {
		err = errors.Wrap(werr, "ffmpeg failed")
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}

	t.mu.Lock()
	if t.cur != s {
		// Stopped or replaced
		t.mu.Unlock()
		return
	}
	t.cur = nil
	t.mu.Unlock()
	s.cancel()

	if serr := t.conn.Speaking(false); serr != nil {
		zlog.Debug().Err(serr).Msg("voice: failed to clear speaking flag")
	}
	done(err)
}

// pump encodes PCM frames until the input ends.
func (t *VoiceTransport) pump(ctx context.Context, s *stream, stdout io.Reader) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return errors.Wrap(err, "failed to create opus encoder")
	}
	if err := t.conn.Speaking(true); err != nil {
		zlog.Debug().Err(err).Msg("voice: failed to set speaking flag")
	}

	pcm := make([]byte, frameBytes)
	samples := make([]int16, frameSize*channels)
	for {
		if err := t.waitResumed(ctx, s); err != nil {
			return err
		}

		if _, err := io.ReadFull(stdout, pcm); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return errors.Wrap(err, "failed to read audio")
		}
		decodePCM(pcm, samples)
		scalePCM(samples, t.Volume())

		frame, err := encoder.Encode(samples, frameSize, maxOpusLen)
		if err != nil {
			return errors.Wrap(err, "failed to encode audio")
		}
		select {
		case t.send <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *VoiceTransport) waitResumed(ctx context.Context, s *stream) error {
	t.mu.Lock()
	if !s.paused {
		t.mu.Unlock()
		return nil
	}
	resume := s.resume
	t.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements playback.Transport.
func (t *VoiceTransport) Stop() {
	t.mu.Lock()
	s := t.cur
	t.cur = nil
	t.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

// Pause implements playback.Transport.
func (t *VoiceTransport) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil || t.cur.paused {
		return false
	}
	t.cur.paused = true
	t.cur.resume = make(chan struct{})
	return true
}

// Resume implements playback.Transport.
func (t *VoiceTransport) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil || !t.cur.paused {
		return false
	}
	t.cur.paused = false
	close(t.cur.resume)
	return true
}

// SetVolume implements playback.Transport.
func (t *VoiceTransport) SetVolume(volume float64) {
	t.volume.Store(math.Float64bits(volume))
}

// Volume returns the current volume factor.
func (t *VoiceTransport) Volume() float64 {
	return math.Float64frombits(t.volume.Load())
}

// Close implements playback.Transport.
func (t *VoiceTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	s := t.cur
	t.cur = nil
	onClose := t.onClose
	t.mu.Unlock()

	if s != nil {
		s.cancel()
	}
	if onClose != nil {
		onClose()
	}
	if err := t.conn.Disconnect(); err != nil {
		return errors.Wrap(err, "failed to leave voice channel")
	}
	return nil
}

// decodePCM converts little-endian s16 bytes to samples.
func decodePCM(pcm []byte, samples []int16) {
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
}

// scalePCM applies volume to samples in place, clipping at the int16 range.
func scalePCM(samples []int16, volume float64) {
	if volume == 1 {
		return
	}
	for i, s := range samples {
		v := float64(s) * volume
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		samples[i] = int16(v)
	}
}
