package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/playback"
)

const (
	joinAttempts = 3
	readyTimeout = 10 * time.Second
	readyPoll    = 100 * time.Millisecond
)

// Connector joins voice channels and hands out one transport per guild connection.
type Connector struct {
	session *discordgo.Session
	ffmpeg  string

	mu         sync.Mutex
	transports map[string]*VoiceTransport
}

// NewConnector creates a connector that decodes audio with the ffmpeg binary at ffmpegPath.
func NewConnector(session *discordgo.Session, ffmpegPath string) *Connector {
	return &Connector{
		session:    session,
		ffmpeg:     ffmpegPath,
		transports: make(map[string]*VoiceTransport),
	}
}

// Connect implements session.Connector.
// Joining another channel in a guild that is already connected moves the existing connection
// and returns the same transport.
func (c *Connector) Connect(ctx context.Context, guildID, voiceChannelID string) (playback.Transport, error) {
	var lastErr error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		vc, err := c.session.ChannelVoiceJoin(guildID, voiceChannelID, false, true)
		if err == nil {
			if err = waitReady(ctx, vc); err == nil {
				return c.transport(guildID, vc), nil
			}
		}
		lastErr = err
		zlog.Warn().Err(err).Msgf("voice: join failed: guild=%s channel=%s attempt=%d", guildID, voiceChannelID, attempt)

		if attempt == joinAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	// Leave whatever half-open connection discordgo kept
	c.session.RLock()
	vc, ok := c.session.VoiceConnections[guildID]
	c.session.RUnlock()
	if ok {
		c.mu.Lock()
		_, tracked := c.transports[guildID]
		c.mu.Unlock()
		if !tracked {
			_ = vc.Disconnect()
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to join voice channel after %d attempts", joinAttempts)
}

// Disconnect leaves the guild's voice channel if connected.
func (c *Connector) Disconnect(guildID string) error {
	c.mu.Lock()
	t, ok := c.transports[guildID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return t.Close()
}

func (c *Connector) transport(guildID string, vc *discordgo.VoiceConnection) *VoiceTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transports[guildID]; ok && t.conn == vc {
		return t
	}
	t := newVoiceTransport(vc, vc.OpusSend, c.ffmpeg)
	t.onClose = func() {
		c.mu.Lock()
		if c.transports[guildID] == t {
			delete(c.transports, guildID)
		}
		c.mu.Unlock()
	}
	c.transports[guildID] = t
	return t
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "voice connection not ready")
		case <-ticker.C:
		}
	}
}
