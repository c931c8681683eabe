// Package playback drives song transitions for each guild's queue.
package playback

// State represents the playback state of a guild.
type State int

const (
	StateIdle    State = iota // Nothing playing
	StateLoading              // Fetching the current song
	StatePlaying              // Audio is being sent
	StatePaused               // Audio is held
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
