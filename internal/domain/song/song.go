// Package song provides the Song domain entity.
package song

import (
	"fmt"
	"time"
)

// FetchStatus represents where a song's audio file is in its download cycle.
type FetchStatus int

const (
	NotFetched FetchStatus = iota // No local file yet
	Fetching                      // A download is in flight
	Fetched                       // A local file path is recorded
)

// String returns the string representation of the fetch status.
func (s FetchStatus) String() string {
	switch s {
	case NotFetched:
		return "not_fetched"
	case Fetching:
		return "fetching"
	case Fetched:
		return "fetched"
	default:
		return "unknown"
	}
}

// FetchState is the download state of a song. A path is only carried
// by the Fetched status.
type FetchState struct {
	Status FetchStatus
	Path   string
}

// Requester is the guild member who asked for the song.
type Requester struct {
	ID   string // Discord user ID
	Name string // Display name
}

// Song represents an item in a guild queue.
// Fetch state is mutated only by the owning queue while it holds its lock.
type Song struct {
	ID        string // Stable id reported by yt-dlp, also the cache key
	Title     string
	URL       string
	Duration  int // Seconds, 0 when unknown
	Uploader  string
	Thumbnail string
	Requester Requester
	AddedAt   time.Time

	fetch    FetchState
	failures int // Failed downloads since the last successful one
}

// FetchState returns the current fetch state.
func (s *Song) FetchState() FetchState {
	return s.fetch
}

// MarkFetching records that a download has started.
func (s *Song) MarkFetching() {
	s.fetch = FetchState{Status: Fetching}
}

// MarkFetched records the local file produced by a download.
func (s *Song) MarkFetched(path string) {
	s.fetch = FetchState{Status: Fetched, Path: path}
	s.failures = 0
}

// ResetFetch returns the song to NotFetched so it can be retried.
func (s *Song) ResetFetch() {
	s.fetch = FetchState{Status: NotFetched}
}

// FailFetch returns the song to NotFetched and counts the failure.
func (s *Song) FailFetch() {
	s.ResetFetch()
	s.failures++
}

// FetchFailures returns the number of failed downloads since the last success.
func (s *Song) FetchFailures() int {
	return s.failures
}

// FilePath returns the recorded file path, or "" when not fetched.
func (s *Song) FilePath() string {
	if s.fetch.Status != Fetched {
		return ""
	}
	return s.fetch.Path
}

// DurationString formats the duration as m:ss or h:mm:ss.
func (s *Song) DurationString() string {
	return FormatDuration(s.Duration)
}

// FormatDuration formats seconds as m:ss or h:mm:ss. Unknown durations render as "Unknown".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
