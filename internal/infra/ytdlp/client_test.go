package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu sync.Mutex

	runFunc    func(args []string) (string, string, error)
	streamFunc func(args []string, onLine func(string)) (string, error)

	runCalls    [][]string
	streamCalls [][]string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (string, string, error) {
	f.mu.Lock()
	f.runCalls = append(f.runCalls, args)
	f.mu.Unlock()
	return f.runFunc(args)
}

func (f *fakeRunner) Stream(_ context.Context, onLine func(string), args ...string) (string, error) {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, args)
	f.mu.Unlock()
	return f.streamFunc(args, onLine)
}

const videoJSON = `{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","duration":212.0,` +
	`"uploader":"Rick Astley","thumbnail":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg",` +
	`"webpage_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","filesize_approx":3400000}`

func newTestClient(t *testing.T, r runner) *Client {
	t.Helper()
	c, err := newClient(Config{Dir: t.TempDir()}, r)
	require.NoError(t, err)
	return c
}

func TestClient_Resolve(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return videoJSON, "", nil
		}}
		c := newTestClient(t, r)

		meta, err := c.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)
		assert.Equal(t, "dQw4w9WgXcQ", meta.ID)
		assert.Equal(t, "Never Gonna Give You Up", meta.Title)
		assert.Equal(t, 212, meta.Duration)
		assert.Equal(t, "Rick Astley", meta.Uploader)
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", meta.URL)
		assert.Equal(t, int64(3400000), meta.FilesizeApprox)
		assert.Equal(t, []string{"--dump-json", "--no-playlist", "https://youtu.be/dQw4w9WgXcQ"}, r.runCalls[0])
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return "", "ERROR: Video unavailable", errors.New("exit status 1")
		}}
		c := newTestClient(t, r)

		_, err := c.Resolve(context.Background(), "https://youtu.be/gone")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrResolution))
		assert.Contains(t, Diagnostic(err), "Video unavailable")
	})

	t.Run("unparsable output", func(t *testing.T) {
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return "not json", "", nil
		}}
		c := newTestClient(t, r)

		_, err := c.Resolve(context.Background(), "https://youtu.be/x")
		assert.True(t, errors.Is(err, ErrResolution))
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("results in order", func(t *testing.T) {
		out := strings.Join([]string{
			`{"id":"a1","title":"First","duration":60,"channel":"Chan A","url":"https://www.youtube.com/watch?v=a1"}`,
			`{"id":"b2","title":"Second","duration":null,"uploader":"Up B"}`,
		}, "\n")
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return out, "", nil
		}}
		c := newTestClient(t, r)

		results, err := c.Search(context.Background(), "lofi beats", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a1", results[0].ID)
		assert.Equal(t, "Chan A", results[0].Uploader)
		assert.Equal(t, "https://www.youtube.com/watch?v=a1", results[0].URL)
		assert.Equal(t, "b2", results[1].ID)
		assert.Equal(t, 0, results[1].Duration)
		assert.Equal(t, "https://www.youtube.com/watch?v=b2", results[1].URL)
		assert.Equal(t, "ytsearch2:lofi beats", r.runCalls[0][len(r.runCalls[0])-1])
	})

	t.Run("no results", func(t *testing.T) {
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return "", "", nil
		}}
		c := newTestClient(t, r)

		_, err := c.Search(context.Background(), "nothing", 5)
		assert.True(t, errors.Is(err, ErrSearch))
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("process failure", func(t *testing.T) {
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return "", "network down", errors.New("exit status 1")
		}}
		c := newTestClient(t, r)

		_, err := c.Search(context.Background(), "x", 1)
		assert.True(t, errors.Is(err, ErrSearch))
	})
}

func TestClient_Playlist(t *testing.T) {
	out := `{"id":"p1","title":"One"}` + "\n" + `{"id":"p2","title":"Two"}` + "\n"
	r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
		return out, "", nil
	}}
	c := newTestClient(t, r)

	entries, err := c.Playlist(context.Background(), "https://www.youtube.com/playlist?list=PL1", 25)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://www.youtube.com/watch?v=p2", entries[1].URL)
	assert.Contains(t, r.runCalls[0], "--flat-playlist")
	assert.Contains(t, r.runCalls[0], "25")
}

func TestClient_Download(t *testing.T) {
	resolveOK := func(args []string) (string, string, error) { return videoJSON, "", nil }

	t.Run("downloads with progress", func(t *testing.T) {
		var c *Client
		r := &fakeRunner{
			runFunc: resolveOK,
			streamFunc: func(args []string, onLine func(string)) (string, error) {
				onLine("[youtube] dQw4w9WgXcQ: Downloading webpage")
				onLine("[download]   0.0% of 3.24MiB at 1.00MiB/s ETA 00:03")
				onLine("[download]  42.5% of 3.24MiB at 1.00MiB/s ETA 00:02")
				onLine("[download]  42.5% of 3.24MiB at 1.00MiB/s ETA 00:02")
				onLine("[download] 100% of 3.24MiB in 00:03")
				return "ok", os.WriteFile(c.PathFor("dQw4w9WgXcQ"), []byte("audio"), 0o644)
			},
		}
		c = newTestClient(t, r)

		var got []float64
		res, err := c.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ", func(p Progress) {
			got = append(got, p.Percent)
			assert.Equal(t, "dQw4w9WgXcQ", p.Metadata.ID)
		})
		require.NoError(t, err)
		assert.False(t, res.Cached)
		assert.Equal(t, filepath.Join(c.Dir(), "dQw4w9WgXcQ.mp3"), res.Path)
		assert.Equal(t, []float64{0, 42.5, 42.5, 100}, got)

		args := r.streamCalls[0]
		assert.Contains(t, args, "--extract-audio")
		assert.Contains(t, args, "128K")
		assert.Contains(t, args, filepath.Join(c.Dir(), "%(id)s.%(ext)s"))
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", args[len(args)-1])
	})

	t.Run("cache hit skips yt-dlp", func(t *testing.T) {
		r := &fakeRunner{
			runFunc: resolveOK,
			streamFunc: func(args []string, onLine func(string)) (string, error) {
				t.Fatal("download should not run on a cache hit")
				return "", nil
			},
		}
		c := newTestClient(t, r)
		require.NoError(t, os.WriteFile(c.PathFor("dQw4w9WgXcQ"), []byte("audio"), 0o644))

		res, err := c.PreDownload(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Empty(t, r.streamCalls)
	})

	t.Run("failure carries diagnostic", func(t *testing.T) {
		r := &fakeRunner{
			runFunc: resolveOK,
			streamFunc: func(args []string, onLine func(string)) (string, error) {
				return "ERROR: HTTP Error 403: Forbidden", errors.New("exit status 1")
			},
		}
		c := newTestClient(t, r)

		_, err := c.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDownload))
		assert.Contains(t, Diagnostic(err), "403")
	})

	t.Run("missing file after success", func(t *testing.T) {
		r := &fakeRunner{
			runFunc: resolveOK,
			streamFunc: func(args []string, onLine func(string)) (string, error) {
				return "", nil
			},
		}
		c := newTestClient(t, r)

		_, err := c.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ", nil)
		assert.True(t, errors.Is(err, ErrDownload))
	})

	t.Run("resolution failure", func(t *testing.T) {
		r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
			return "", "", errors.New("exit status 1")
		}}
		c := newTestClient(t, r)

		_, err := c.Download(context.Background(), "https://youtu.be/x", nil)
		assert.True(t, errors.Is(err, ErrResolution))
	})
}

func TestClient_Version(t *testing.T) {
	r := &fakeRunner{runFunc: func(args []string) (string, string, error) {
		if args[0] == "--version" {
			return "2025.10.22\n", "", nil
		}
		return "", "", errors.New("unexpected")
	}}
	c := newTestClient(t, r)

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025.10.22", v)
	assert.True(t, c.Available(context.Background()))

	broken := newTestClient(t, &fakeRunner{runFunc: func(args []string) (string, string, error) {
		return "", "", errors.New("executable file not found in $PATH")
	}})
	assert.False(t, broken.Available(context.Background()))
}
