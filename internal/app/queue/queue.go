// Package queue provides the per-guild song queue and its registry.
package queue

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/samber/lo"
)

// ErrQueue marks every error returned by queue operations.
var ErrQueue = errors.New("queue error")

// Errors
var (
	ErrSongNotFound        = errors.New("song not found")
	ErrCannotRemoveCurrent = errors.New("cannot remove the current song, skip it instead")
	ErrInvalidLoopMode     = errors.New("invalid loop mode")
	ErrInvalidVolume       = errors.New("volume must be between 0 and 100")
)

// queueError marks err as a queue error.
func queueError(err error) error {
	return errors.Mark(err, ErrQueue)
}

// Config holds queue configuration.
type Config struct {
	DefaultVolume int // Initial volume percent
	HistorySize   int // Maximum number of played songs kept
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{DefaultVolume: 50, HistorySize: 50}
}

// Queue is the ordered list of songs for one guild.
// songs[0] is the song now playing; the rest play in order.
type Queue struct {
	mu sync.Mutex

	guildID        string
	textChannelID  string
	voiceChannelID string

	songs   []*song.Song
	history []*song.Song // Most recent first

	playing bool
	paused  bool
	loop    LoopMode
	volume  float64 // Fraction in [0, 1]

	historySize int
	intn        func(n int) int
}

// New creates an empty queue for a guild.
func New(guildID string, config Config) *Queue {
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultConfig().HistorySize
	}
	if config.DefaultVolume < 0 || config.DefaultVolume > 100 {
		config.DefaultVolume = DefaultConfig().DefaultVolume
	}
	return &Queue{
		guildID:     guildID,
		songs:       make([]*song.Song, 0),
		history:     make([]*song.Song, 0),
		volume:      float64(config.DefaultVolume) / 100,
		historySize: config.HistorySize,
		intn:        rand.IntN,
	}
}

// GuildID returns the guild this queue belongs to.
func (q *Queue) GuildID() string {
	return q.guildID
}

// SetChannels records where the queue announces and plays.
func (q *Queue) SetChannels(textChannelID, voiceChannelID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.textChannelID = textChannelID
	q.voiceChannelID = voiceChannelID
}

// TextChannelID returns the channel used for announcements.
func (q *Queue) TextChannelID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.textChannelID
}

// VoiceChannelID returns the voice channel the queue plays into.
func (q *Queue) VoiceChannelID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.voiceChannelID
}

// AddSong appends a song and returns the new queue length.
func (q *Queue) AddSong(s *song.Song) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.songs = append(q.songs, s)
	return len(q.songs)
}

// InsertNext places a song right after the current one and returns its position.
func (q *Queue) InsertNext(s *song.Song) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) == 0 {
		q.songs = append(q.songs, s)
		return 0
	}
	q.songs = append(q.songs[:1], append([]*song.Song{s}, q.songs[1:]...)...)
	return 1
}

// RemoveSong deletes the upcoming song at index and returns it.
// Index 0 is the playing song and cannot be removed.
func (q *Queue) RemoveSong(index int) (*song.Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index == 0 && len(q.songs) > 0 {
		return nil, queueError(ErrCannotRemoveCurrent)
	}
	if index < 1 || index >= len(q.songs) {
		return nil, queueError(errors.Wrapf(ErrSongNotFound, "index %d", index))
	}
	removed := q.songs[index]
	q.songs = append(q.songs[:index], q.songs[index+1:]...)
	return removed, nil
}

// MoveSong relocates the song at from to position to and returns it.
// It returns nil and leaves the queue unchanged when either index is out of range.
func (q *Queue) MoveSong(from, to int) *song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.songs)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil
	}
	s := q.songs[from]
	if from == to {
		return s
	}
	q.songs = append(q.songs[:from], q.songs[from+1:]...)
	q.songs = append(q.songs[:to], append([]*song.Song{s}, q.songs[to:]...)...)
	return s
}

// Shuffle randomly reorders the upcoming songs, keeping the current one in place.
// It returns false when there are fewer than two songs.
func (q *Queue) Shuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) < 2 {
		return false
	}
	for i := len(q.songs) - 1; i > 1; i-- {
		j := 1 + q.intn(i)
		q.songs[i], q.songs[j] = q.songs[j], q.songs[i]
	}
	return true
}

// SetLoop changes the loop mode.
func (q *Queue) SetLoop(mode LoopMode) error {
	if !mode.Valid() {
		return queueError(errors.Wrapf(ErrInvalidLoopMode, "%d", int(mode)))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = mode
	return nil
}

// Loop returns the loop mode.
func (q *Queue) Loop() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loop
}

// SetVolume sets the volume from a percentage in [0, 100].
func (q *Queue) SetVolume(percent int) error {
	if percent < 0 || percent > 100 {
		return queueError(errors.Wrapf(ErrInvalidVolume, "got %d", percent))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.volume = float64(percent) / 100
	return nil
}

// Volume returns the volume as a fraction in [0, 1].
func (q *Queue) Volume() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.volume
}

// VolumePercent returns the volume as a percentage.
func (q *Queue) VolumePercent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(math.Round(q.volume * 100))
}

// AddToHistory records a played song, dropping the oldest entries beyond the limit.
func (q *Queue) AddToHistory(s *song.Song) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.history = append([]*song.Song{s}, q.history...)
	if len(q.history) > q.historySize {
		q.history = q.history[:q.historySize]
	}
}

// History returns up to limit played songs, most recent first. A limit <= 0 returns all.
func (q *Queue) History(limit int) []*song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return headOf(q.history, limit)
}

// TotalDuration returns the summed duration of all queued songs in seconds.
func (q *Queue) TotalDuration() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.SumBy(q.songs, func(s *song.Song) int { return s.Duration })
}

// Len returns the number of queued songs including the current one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.songs)
}

// Current returns the song at position 0, or nil when the queue is empty.
func (q *Queue) Current() *song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 {
		return nil
	}
	return q.songs[0]
}

// Upcoming returns up to limit songs after the current one. A limit <= 0 returns all.
func (q *Queue) Upcoming(limit int) []*song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) < 2 {
		return []*song.Song{}
	}
	return headOf(q.songs[1:], limit)
}

// Songs returns a snapshot of the queue.
func (q *Queue) Songs() []*song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return headOf(q.songs, 0)
}

// Clear removes every song and returns the removed songs.
func (q *Queue) Clear() []*song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.songs
	q.songs = make([]*song.Song, 0)
	q.playing = false
	q.paused = false
	return removed
}

// ClearUpcoming removes every song after the playing one and returns them.
// When nothing is playing the whole queue is cleared.
func (q *Queue) ClearUpcoming() []*song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	keep := 0
	if q.playing && len(q.songs) > 0 {
		keep = 1
	}
	removed := slices.Clone(q.songs[keep:])
	q.songs = q.songs[:keep]
	return removed
}

// IsPlaying reports whether a song is being played.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// IsPaused reports whether playback is paused.
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// TryStartPlaying sets the playing flag if it was unset and the queue has songs.
// It returns false when playback is already running or there is nothing to play.
func (q *Queue) TryStartPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing || len(q.songs) == 0 {
		return false
	}
	q.playing = true
	q.paused = false
	return true
}

// SetPlaying sets the playing flag and clears paused. Each transition starts unpaused.
func (q *Queue) SetPlaying(playing bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.playing = playing
	q.paused = false
}

// SetPaused sets the paused flag.
func (q *Queue) SetPaused(paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = paused
}

// Contains reports whether s is still in the queue.
func (q *Queue) Contains(s *song.Song) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.Contains(q.songs, s)
}

func headOf(songs []*song.Song, limit int) []*song.Song {
	if limit <= 0 || limit > len(songs) {
		limit = len(songs)
	}
	out := make([]*song.Song, limit)
	copy(out, songs[:limit])
	return out
}

// PopCurrentIf removes the current song only if it is still s.
func (q *Queue) PopCurrentIf(s *song.Song) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 || q.songs[0] != s {
		return false
	}
	q.songs = q.songs[1:]
	return true
}

// RotateCurrentIf moves the current song to the tail only if it is still s.
func (q *Queue) RotateCurrentIf(s *song.Song) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 || q.songs[0] != s {
		return false
	}
	q.songs = append(q.songs[1:], s)
	return true
}

// References reports whether any queued song has its file at path.
func (q *Queue) References(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.ContainsBy(q.songs, func(s *song.Song) bool { return s.FilePath() == path })
}

// StopIfEmpty clears the playing flag if no songs are left and reports whether it did.
func (q *Queue) StopIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) > 0 {
		return false
	}
	q.playing = false
	q.paused = false
	return true
}
