package playback

import "github.com/osa030/jukebot/internal/domain/song"

// EventType represents a playback event type.
type EventType int

const (
	EventNowPlaying       EventType = iota // A song started playing
	EventDownloadProgress                  // The song about to play is downloading
	EventPlaybackFailed                    // A play attempt failed; the queue moves on
	EventTrackEnded                        // A song finished naturally
	EventStateChanged                      // Paused or resumed
	EventQueueEmpty                        // The last song finished
	EventPlaybackStalled                   // Every song in a looping queue failed in a row
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventNowPlaying:
		return "now_playing"
	case EventDownloadProgress:
		return "download_progress"
	case EventPlaybackFailed:
		return "playback_failed"
	case EventTrackEnded:
		return "track_ended"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventPlaybackStalled:
		return "playback_stalled"
	default:
		return "unknown"
	}
}

// Event represents a playback event for one guild.
type Event struct {
	Type    EventType
	GuildID string
	Song    *song.Song // nil for queue-level events
	State   State
	Percent float64 // EventDownloadProgress only
	Cached  bool    // EventNowPlaying only
	Err     error   // EventPlaybackFailed only
}
