// Package ytdlp is the download gateway backed by the yt-dlp executable.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Config holds gateway configuration.
type Config struct {
	Dir          string // Directory audio files are written to
	AudioFormat  string // e.g. "mp3"
	AudioQuality string // e.g. "128K"
	Proxy        string
}

// SearchResult is a search hit.
type SearchResult = Metadata

// Progress is reported while a download is running.
type Progress struct {
	Percent  float64
	Metadata *Metadata
}

// Result is the outcome of a successful download.
type Result struct {
	Path     string
	Metadata *Metadata
	Cached   bool // The file already existed and yt-dlp did not run
}

// Client resolves, searches and downloads media with yt-dlp.
type Client struct {
	config Config
	run    runner
	flight singleflight.Group
}

// NewClient creates a client and ensures the download directory exists.
func NewClient(config Config) (*Client, error) {
	return newClient(config, &commandRunner{proxy: config.Proxy})
}

func newClient(config Config, r runner) (*Client, error) {
	if config.Dir == "" {
		config.Dir = "downloads"
	}
	if config.AudioFormat == "" {
		config.AudioFormat = "mp3"
	}
	if config.AudioQuality == "" {
		config.AudioQuality = "128K"
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create download directory %s", config.Dir)
	}
	return &Client{config: config, run: r}, nil
}

// Dir returns the download directory.
func (c *Client) Dir() string {
	return c.config.Dir
}

// PathFor returns where the audio file for a stable id is stored.
func (c *Client) PathFor(id string) string {
	return filepath.Join(c.config.Dir, id+"."+c.config.AudioFormat)
}

// Resolve fetches metadata for a single URL.
func (c *Client) Resolve(ctx context.Context, url string) (*Metadata, error) {
	stdout, stderr, err := c.run.Run(ctx, "--dump-json", "--no-playlist", url)
	if err != nil {
		return nil, withDiagnostic(errors.Mark(errors.Wrapf(err, "resolve %s", url), ErrResolution), stderr)
	}
	meta, err := parseRecord(stdout)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve %s", url), ErrResolution)
	}
	return meta, nil
}

// Search returns up to limit results for a free-text query, in the order yt-dlp reports them.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*SearchResult, error) {
	if limit <= 0 {
		limit = 1
	}
	target := fmt.Sprintf("ytsearch%d:%s", limit, query)
	stdout, stderr, err := c.run.Run(ctx,
		"--dump-json", "--flat-playlist", "--playlist-end", fmt.Sprint(limit), target)
	if err != nil {
		return nil, withDiagnostic(errors.Mark(errors.Wrapf(err, "search %q", query), ErrSearch), stderr)
	}
	results, err := parseRecords(stdout)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "search %q", query), ErrSearch)
	}
	if len(results) == 0 {
		return nil, errors.Mark(errors.Wrapf(ErrNotFound, "search %q", query), ErrSearch)
	}
	for _, r := range results {
		r.URL = watchURL(r.ID)
	}
	return results, nil
}

// Playlist returns up to limit entries of a playlist URL without resolving each entry.
func (c *Client) Playlist(ctx context.Context, url string, limit int) ([]*Metadata, error) {
	args := []string{"--dump-json", "--flat-playlist"}
	if limit > 0 {
		args = append(args, "--playlist-end", fmt.Sprint(limit))
	}
	stdout, stderr, err := c.run.Run(ctx, append(args, url)...)
	if err != nil {
		return nil, withDiagnostic(errors.Mark(errors.Wrapf(err, "playlist %s", url), ErrResolution), stderr)
	}
	entries, err := parseRecords(stdout)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "playlist %s", url), ErrResolution)
	}
	if len(entries) == 0 {
		return nil, errors.Mark(errors.Wrapf(ErrNotFound, "playlist %s", url), ErrResolution)
	}
	return entries, nil
}

// Download fetches audio for url into the download directory, reporting progress.
// An existing file at the target path is returned as-is without any freshness check.
// Concurrent downloads of the same URL share one yt-dlp run; only the first caller
// receives progress.
func (c *Client) Download(ctx context.Context, url string, onProgress func(Progress)) (*Result, error) {
	v, err, _ := c.flight.Do(url, func() (any, error) {
		return c.download(ctx, url, onProgress)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// PreDownload is Download without progress reporting.
func (c *Client) PreDownload(ctx context.Context, url string) (*Result, error) {
	return c.Download(ctx, url, nil)
}

func (c *Client) download(ctx context.Context, url string, onProgress func(Progress)) (*Result, error) {
	meta, err := c.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}

	path := c.PathFor(meta.ID)
	if fileExists(path) {
		zlog.Debug().Msgf("ytdlp: cache hit: id=%s, path=%s", meta.ID, path)
		return &Result{Path: path, Metadata: meta, Cached: true}, nil
	}

	zlog.Info().Msgf("ytdlp: downloading: id=%s, title=%s", meta.ID, meta.Title)
	onLine := func(line string) {
		if onProgress == nil {
			return
		}
		if pct, ok := parseProgress(line); ok {
			onProgress(Progress{Percent: pct, Metadata: meta})
		}
	}
	output, err := c.run.Stream(ctx, onLine,
		"--extract-audio",
		"--audio-format", c.config.AudioFormat,
		"--audio-quality", c.config.AudioQuality,
		"--output", filepath.Join(c.config.Dir, "%(id)s.%(ext)s"),
		"--no-playlist",
		"--newline",
		meta.URL,
	)
	if err != nil {
		return nil, withDiagnostic(errors.Mark(errors.Wrapf(err, "download %s", meta.ID), ErrDownload), output)
	}
	if !fileExists(path) {
		return nil, withDiagnostic(errors.Mark(errors.Newf("download %s: expected file %s was not created", meta.ID, path), ErrDownload), output)
	}
	return &Result{Path: path, Metadata: meta}, nil
}

// Version returns the installed yt-dlp version.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, stderr, err := c.run.Run(ctx, "--version")
	if err != nil {
		return "", withDiagnostic(errors.Wrap(err, "yt-dlp is not available"), stderr)
	}
	return strings.TrimSpace(stdout), nil
}

// Available reports whether yt-dlp can be executed.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.Version(ctx)
	return err == nil
}

// Update asks yt-dlp to update itself and returns its output.
func (c *Client) Update(ctx context.Context) (string, error) {
	stdout, stderr, err := c.run.Run(ctx, "-U")
	if err != nil {
		return stdout, withDiagnostic(errors.Wrap(err, "yt-dlp update failed"), stderr)
	}
	return strings.TrimSpace(stdout), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
