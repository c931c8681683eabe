package reclaim

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// FileInfo describes a downloaded audio file.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Usage summarizes the download directory.
type Usage struct {
	Dir        string
	Files      []FileInfo // Newest first
	TotalBytes int64
}

// SweepResult is the outcome of a directory sweep.
type SweepResult struct {
	Deleted    int
	FreedBytes int64
	Skipped    int // Files kept because they are queued
}

// Sweeper removes downloaded files by age, independently of playback.
type Sweeper struct {
	dir   string
	ext   string
	inUse func(path string) bool
	now   func() time.Time
}

// NewSweeper creates a sweeper for files with extension ext (e.g. ".mp3") in dir.
// inUse may be nil; when set, files it reports are never deleted.
func NewSweeper(dir, ext string, inUse func(path string) bool) *Sweeper {
	if inUse == nil {
		inUse = func(string) bool { return false }
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Sweeper{dir: dir, ext: ext, inUse: inUse, now: time.Now}
}

// Info lists the audio files in the download directory.
func (s *Sweeper) Info() (Usage, error) {
	files, err := s.list()
	if err != nil {
		return Usage{}, err
	}
	slices.SortFunc(files, func(a, b FileInfo) int { return b.ModTime.Compare(a.ModTime) })
	return Usage{
		Dir:        s.dir,
		Files:      files,
		TotalBytes: lo.SumBy(files, func(f FileInfo) int64 { return f.Size }),
	}, nil
}

// SweepOlderThan deletes files last modified more than age ago.
func (s *Sweeper) SweepOlderThan(age time.Duration) (SweepResult, error) {
	cutoff := s.now().Add(-age)
	return s.sweep(func(f FileInfo) bool { return f.ModTime.Before(cutoff) })
}

// DeleteAll deletes every audio file that is not queued.
func (s *Sweeper) DeleteAll() (SweepResult, error) {
	return s.sweep(func(FileInfo) bool { return true })
}

// Run sweeps files older than maxAge every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.SweepOlderThan(maxAge)
			if err != nil {
				zlog.Error().Err(err).Msg("reclaim: periodic sweep failed")
				continue
			}
			if res.Deleted > 0 {
				zlog.Info().Msgf("reclaim: swept old files: deleted=%d, freed=%d bytes", res.Deleted, res.FreedBytes)
			}
		}
	}
}

func (s *Sweeper) sweep(match func(FileInfo) bool) (SweepResult, error) {
	files, err := s.list()
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, f := range lo.Filter(files, func(f FileInfo, _ int) bool { return match(f) }) {
		if s.inUse(f.Path) {
			res.Skipped++
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			zlog.Warn().Err(err).Msgf("reclaim: could not delete %s", f.Name)
			continue
		}
		res.Deleted++
		res.FreedBytes += f.Size
	}
	return res, nil
}

func (s *Sweeper) list() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read download directory %s", s.dir)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || (s.ext != "" && filepath.Ext(e.Name()) != s.ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}
