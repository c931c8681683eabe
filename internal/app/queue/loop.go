package queue

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// LoopMode controls what happens when the current song finishes.
type LoopMode int

const (
	LoopOff   LoopMode = iota // Advance and discard the finished song
	LoopSong                  // Replay the current song
	LoopQueue                 // Move the finished song to the tail
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopSong:
		return "song"
	case LoopQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the defined modes.
func (m LoopMode) Valid() bool {
	return m == LoopOff || m == LoopSong || m == LoopQueue
}

// ParseLoopMode converts "off", "song" or "queue" into a LoopMode.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LoopOff, nil
	case "song":
		return LoopSong, nil
	case "queue":
		return LoopQueue, nil
	default:
		return LoopOff, queueError(errors.Wrapf(ErrInvalidLoopMode, "%q", s))
	}
}

// Next returns the mode that follows m in the off, song, queue cycle.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopOff:
		return LoopSong
	case LoopSong:
		return LoopQueue
	default:
		return LoopOff
	}
}
