// Package state tracks each guild's voice presence: 24/7 mode and the idle disconnect timer.
package state

// Phase represents a guild's voice presence.
type Phase int

const (
	PhaseDisconnected Phase = iota // No voice connection
	PhaseActive                    // Connected and in use
	PhaseIdle                      // Connected, waiting for the idle timeout
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseActive:
		return "active"
	case PhaseIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// IdleReason tells why a guild went idle.
type IdleReason int

const (
	IdleQueueEmpty   IdleReason = iota // The last song finished
	IdleChannelEmpty                   // Only bots are left in the voice channel
)

// String returns the string representation of the idle reason.
func (r IdleReason) String() string {
	switch r {
	case IdleQueueEmpty:
		return "queue_empty"
	case IdleChannelEmpty:
		return "channel_empty"
	default:
		return "unknown"
	}
}
