package notification

import (
	"github.com/osa030/jukebot/internal/domain/song"
)

// Type identifies what happened in a guild.
type Type string

const (
	TypeNowPlaying     Type = "now_playing"
	TypeProgress       Type = "download_progress"
	TypePlaybackFailed Type = "playback_failed"
	TypeQueueEmpty     Type = "queue_empty"
	TypeStalled        Type = "playback_stalled"
	TypeDisconnected   Type = "disconnected"
)

// Notification is a single message delivered to every subscriber.
type Notification struct {
	Type       Type
	GuildID    string
	ChannelID  string // text channel the guild's queue reports to
	Song       *song.Song
	Progress   float64
	Cached     bool
	Err        error
	SequenceNo uint64
}
