package playback

import (
	"context"

	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

// Transport plays audio files into a guild's voice connection.
type Transport interface {
	// Play starts playing path at volume (0..1) and returns without waiting.
	// done is called once: with nil when the file finished, or with the error that ended it.
	// done is never called from within Play, nor after Stop or Close.
	Play(path string, volume float64, done func(err error)) error
	// Stop ends the current file without calling done.
	Stop()
	// Pause holds playback. It returns false if nothing was playing.
	Pause() bool
	// Resume continues paused playback. It returns false if nothing was paused.
	Resume() bool
	// SetVolume changes the volume of the current file.
	SetVolume(volume float64)
	// Close releases the connection.
	Close() error
}

// Downloader fetches the audio file for a URL.
type Downloader interface {
	Download(ctx context.Context, url string, onProgress func(ytdlp.Progress)) (*ytdlp.Result, error)
}

// Reclaimer deletes files that are no longer needed.
type Reclaimer interface {
	ScheduleDelete(path string) bool
}

// Prefetcher downloads upcoming songs in the background.
type Prefetcher interface {
	Start(q *queue.Queue) bool
	Stop(guildID string)
}
