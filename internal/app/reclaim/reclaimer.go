// Package reclaim deletes played audio files, retrying while they are still locked.
package reclaim

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrDeletion marks a file that could not be deleted.
var ErrDeletion = errors.New("deletion failed")

// Config holds reclaimer configuration.
type Config struct {
	InitialDelay time.Duration // Delay before the first attempt
	Retry        RetryPolicy
}

// DefaultConfig returns a 2s initial delay and the default retry policy.
func DefaultConfig() Config {
	return Config{InitialDelay: 2 * time.Second, Retry: DefaultRetryPolicy()}
}

// CleanupResult is the outcome of ForceCleanup.
type CleanupResult struct {
	Attempted int
	Deleted   int
}

// Status describes the pending deletions.
type Status struct {
	Pending int
	Files   []string // Base names
}

// timer is the part of *time.Timer the reclaimer uses.
type timer interface {
	Stop() bool
}

type pendingFile struct {
	attempts int
	timer    timer
}

// Reclaimer schedules deferred file deletions. Each path is pending at most once.
type Reclaimer struct {
	mu      sync.Mutex
	pending map[string]*pendingFile
	config  Config

	afterFunc func(d time.Duration, f func()) timer
	remove    func(path string) error
}

// New creates a reclaimer.
func New(config Config) *Reclaimer {
	if config.InitialDelay <= 0 {
		config.InitialDelay = DefaultConfig().InitialDelay
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryPolicy()
	}
	return &Reclaimer{
		pending: make(map[string]*pendingFile),
		config:  config,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		remove: os.Remove,
	}
}

// ScheduleDelete deletes path after the configured initial delay.
// It returns false when path is already pending.
func (r *Reclaimer) ScheduleDelete(path string) bool {
	return r.ScheduleDeleteAfter(path, r.config.InitialDelay)
}

// ScheduleDeleteAfter deletes path after delay.
// It returns false when path is empty or already pending.
func (r *Reclaimer) ScheduleDeleteAfter(path string, delay time.Duration) bool {
	if path == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[path]; ok {
		return false
	}
	p := &pendingFile{}
	r.pending[path] = p
	p.timer = r.afterFunc(delay, func() { r.attempt(path, p) })
	return true
}

func (r *Reclaimer) attempt(path string, p *pendingFile) {
	r.mu.Lock()
	if r.pending[path] != p {
		// Flushed or rescheduled meanwhile
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	err := r.remove(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[path] != p {
		return
	}
	p.attempts++

	switch {
	case err == nil || os.IsNotExist(err):
		delete(r.pending, path)
		zlog.Debug().Msgf("reclaim: deleted audio file: %s", filepath.Base(path))
	case isLocked(err):
		if r.config.Retry.Exhausted(p.attempts) {
			delete(r.pending, path)
			zlog.Warn().Err(errors.Mark(err, ErrDeletion)).Msgf("reclaim: could not delete file after %d attempts: %s", p.attempts, filepath.Base(path))
			return
		}
		delay := r.config.Retry.Backoff(p.attempts)
		zlog.Debug().Msgf("reclaim: file busy, retry %d/%d in %s: %s",
			p.attempts+1, r.config.Retry.MaxAttempts, delay, filepath.Base(path))
		p.timer = r.afterFunc(delay, func() { r.attempt(path, p) })
	default:
		delete(r.pending, path)
		zlog.Error().Err(errors.Mark(err, ErrDeletion)).Msgf("reclaim: failed to delete file: %s", filepath.Base(path))
	}
}

// ForceCleanup cancels all scheduled retries and tries each pending file once, right now.
func (r *Reclaimer) ForceCleanup() CleanupResult {
	r.mu.Lock()
	files := r.pending
	r.pending = make(map[string]*pendingFile)
	r.mu.Unlock()

	result := CleanupResult{Attempted: len(files)}
	for path, p := range files {
		if p.timer != nil {
			p.timer.Stop()
		}
		if err := r.remove(path); err != nil {
			if !os.IsNotExist(err) {
				zlog.Warn().Err(err).Msgf("reclaim: could not force delete: %s", filepath.Base(path))
			}
			continue
		}
		result.Deleted++
	}
	return result
}

// Status returns the pending deletions.
func (r *Reclaimer) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	files := lo.Map(lo.Keys(r.pending), func(p string, _ int) string { return filepath.Base(p) })
	slices.Sort(files)
	return Status{Pending: len(files), Files: files}
}

// IsPending reports whether path is waiting to be deleted.
func (r *Reclaimer) IsPending(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[path]
	return ok
}

// Close stops all scheduled attempts without deleting anything.
func (r *Reclaimer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, p := range r.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(r.pending, path)
	}
}
