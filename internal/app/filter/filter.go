// Package filter provides the admission chain that runs before a song is queued.
package filter

import (
	"context"
	"slices"

	"github.com/osa030/jukebot/internal/domain/song"
)

// Source tells how a song was requested.
type Source string

const (
	SourceCommand  Source = "command"  // A single /play request
	SourcePlaylist Source = "playlist" // One entry of a /playlist request
)

// Request represents a song about to be queued.
type Request struct {
	GuildID   string
	Requester song.Requester
	Song      *song.Song
	Source    Source
}

// QueueView is the read access filters need on the target queue.
type QueueView interface {
	Songs() []*song.Song
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_song", "queue_full"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should run for the given source.
	AppliesTo(source Source) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request, q QueueView) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns the registered filter names in a stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
