package playback

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	plays   []string
	dones   []func(error)
	stops   int
	paused  bool
	volume  float64
	closed  bool
	playErr error
}

func (f *fakeTransport) Play(path string, volume float64, done func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.plays = append(f.plays, filepath.Base(path))
	f.dones = append(f.dones, done)
	f.volume = volume
	f.paused = false
	return nil
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeTransport) Pause() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused || len(f.plays) == 0 {
		return false
	}
	f.paused = true
	return true
}

func (f *fakeTransport) Resume() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paused {
		return false
	}
	f.paused = false
	return true
}

func (f *fakeTransport) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.plays...)
}

// finish signals the end of the n-th Play call.
func (f *fakeTransport) finish(n int, err error) {
	f.mu.Lock()
	done := f.dones[n]
	f.mu.Unlock()
	done(err)
}

type fakeDownloader struct {
	mu     sync.Mutex
	dir    string
	fail   map[string]bool
	noFile map[string]bool
	block  map[string]chan struct{} // Download waits until the channel is closed
	calls  []string
}

func (f *fakeDownloader) Download(_ context.Context, url string, onProgress func(ytdlp.Progress)) (*ytdlp.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	fail, noFile, block := f.fail[url], f.noFile[url], f.block[url]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, errors.Mark(errors.Newf("download %s", url), ytdlp.ErrDownload)
	}
	meta := &ytdlp.Metadata{ID: url}
	if onProgress != nil {
		onProgress(ytdlp.Progress{Percent: 50, Metadata: meta})
	}
	path := filepath.Join(f.dir, url+".mp3")
	if !noFile {
		if err := os.WriteFile(path, []byte(url), 0o644); err != nil {
			return nil, err
		}
	}
	return &ytdlp.Result{Path: path, Metadata: meta}, nil
}

func (f *fakeDownloader) downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeReclaimer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeReclaimer) ScheduleDelete(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, filepath.Base(path))
	return true
}

func (f *fakeReclaimer) scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type fakePrefetcher struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakePrefetcher) Start(*queue.Queue) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return true
}

func (f *fakePrefetcher) Stop(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

type harness struct {
	driver     *Driver
	registry   *queue.Registry
	queue      *queue.Queue
	transport  *fakeTransport
	downloader *fakeDownloader
	reclaimer  *fakeReclaimer
	prefetcher *fakePrefetcher

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()
	h := &harness{
		registry:   queue.NewRegistry(queue.DefaultConfig()),
		transport:  &fakeTransport{},
		downloader: &fakeDownloader{dir: t.TempDir(), fail: map[string]bool{}, noFile: map[string]bool{}, block: map[string]chan struct{}{}},
		reclaimer:  &fakeReclaimer{},
		prefetcher: &fakePrefetcher{},
	}
	h.driver = NewDriver(h.registry, h.downloader, h.reclaimer, h.prefetcher, Config{EventBuffer: 256})
	h.driver.Attach("g1", h.transport)
	h.queue = h.registry.GetOrCreate("g1")
	for _, id := range ids {
		h.queue.AddSong(&song.Song{ID: id, Title: id, URL: id})
	}

	go func() {
		for e := range h.driver.Events() {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		h.driver.Close()
	})
	return h
}

func (h *harness) eventsOf(typ EventType) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) queueIDs() []string {
	var out []string
	for _, s := range h.queue.Songs() {
		out = append(out, s.ID)
	}
	return out
}

func (h *harness) waitPlays(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.transport.played()) >= n }, time.Second, time.Millisecond)
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	started, err := h.driver.Start(h.queue)
	require.NoError(t, err)
	require.True(t, started)
}

func TestDriver_LoopQueueRotatesWithoutDeleting(t *testing.T) {
	h := newHarness(t, "A", "B")
	require.NoError(t, h.queue.SetLoop(queue.LoopQueue))
	h.start(t)
	h.waitPlays(t, 1)

	h.transport.finish(0, nil)
	h.waitPlays(t, 2)

	assert.Equal(t, []string{"A.mp3", "B.mp3"}, h.transport.played())
	assert.Equal(t, []string{"B", "A"}, h.queueIDs())
	assert.Empty(t, h.reclaimer.scheduled())
	assert.Equal(t, "A", h.queue.History(1)[0].ID)
}

func TestDriver_LoopOffRemovesAndDeletes(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.start(t)
	h.waitPlays(t, 1)

	h.transport.finish(0, nil)
	h.waitPlays(t, 2)

	assert.Equal(t, []string{"B"}, h.queueIDs())
	assert.Equal(t, []string{"A.mp3"}, h.reclaimer.scheduled())
	require.Eventually(t, func() bool { return len(h.eventsOf(EventTrackEnded)) == 1 }, time.Second, time.Millisecond)
}

func TestDriver_LoopSongReplays(t *testing.T) {
	h := newHarness(t, "A", "B")
	require.NoError(t, h.queue.SetLoop(queue.LoopSong))
	h.start(t)
	h.waitPlays(t, 1)

	h.transport.finish(0, nil)
	h.waitPlays(t, 2)

	assert.Equal(t, []string{"A.mp3", "A.mp3"}, h.transport.played())
	assert.Equal(t, []string{"A", "B"}, h.queueIDs())
	assert.Empty(t, h.reclaimer.scheduled())
	require.Eventually(t, func() bool { return len(h.eventsOf(EventNowPlaying)) == 2 }, time.Second, time.Millisecond)
	assert.True(t, h.eventsOf(EventNowPlaying)[1].Cached, "replay uses the fetched file")
	assert.Equal(t, []string{"A"}, h.downloader.downloads())
}

func TestDriver_FailureNotifiesOnceAndAdvances(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.downloader.fail["A"] = true
	h.start(t)
	h.waitPlays(t, 1)

	assert.Equal(t, []string{"B.mp3"}, h.transport.played())
	assert.Equal(t, []string{"B"}, h.queueIDs())

	require.Eventually(t, func() bool { return len(h.eventsOf(EventPlaybackFailed)) == 1 }, time.Second, time.Millisecond)
	failed := h.eventsOf(EventPlaybackFailed)
	assert.Equal(t, "A", failed[0].Song.ID)
	assert.True(t, errors.Is(failed[0].Err, ytdlp.ErrDownload))
	assert.Empty(t, h.reclaimer.scheduled(), "nothing was downloaded for A")
}

func TestDriver_MissingFileIsPlaybackError(t *testing.T) {
	h := newHarness(t, "A")
	h.downloader.noFile["A"] = true
	h.start(t)

	require.Eventually(t, func() bool { return len(h.eventsOf(EventQueueEmpty)) == 1 }, time.Second, time.Millisecond)
	failed := h.eventsOf(EventPlaybackFailed)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0].Err, ErrPlayback))
	assert.Empty(t, h.transport.played())
}

func TestDriver_TransportErrorCountsAsFinished(t *testing.T) {
	h := newHarness(t, "A", "B")
	require.NoError(t, h.queue.SetLoop(queue.LoopSong))
	h.start(t)
	h.waitPlays(t, 1)

	h.transport.finish(0, errors.New("opus encoder died"))
	h.waitPlays(t, 2)

	assert.Equal(t, []string{"A.mp3", "B.mp3"}, h.transport.played(), "a failed song is not looped")
	require.Eventually(t, func() bool { return len(h.eventsOf(EventPlaybackFailed)) == 1 }, time.Second, time.Millisecond)
}

func TestDriver_QueueEmptyRunsIdleHandler(t *testing.T) {
	h := newHarness(t, "A")
	idle := make(chan string, 1)
	h.driver.OnIdle(func(q *queue.Queue) { idle <- q.GuildID() })
	h.start(t)
	h.waitPlays(t, 1)

	h.transport.finish(0, nil)

	select {
	case guildID := <-idle:
		assert.Equal(t, "g1", guildID)
	case <-time.After(time.Second):
		t.Fatal("idle handler not called")
	}
	assert.False(t, h.queue.IsPlaying())
	assert.Equal(t, 0, h.queue.Len())
	require.Eventually(t, func() bool { return len(h.eventsOf(EventQueueEmpty)) == 1 }, time.Second, time.Millisecond)

	h.queue.AddSong(&song.Song{ID: "C", URL: "C"})
	h.start(t)
	h.waitPlays(t, 2)
}

func TestDriver_StartIsSingleFlight(t *testing.T) {
	h := newHarness(t, "A")
	h.start(t)

	started, err := h.driver.Start(h.queue)
	require.NoError(t, err)
	assert.False(t, started)
	h.waitPlays(t, 1)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, h.transport.played(), 1)
}

func TestDriver_StartWithoutTransport(t *testing.T) {
	registry := queue.NewRegistry(queue.DefaultConfig())
	d := NewDriver(registry, &fakeDownloader{}, &fakeReclaimer{}, &fakePrefetcher{}, Config{})
	defer d.Close()

	q := registry.GetOrCreate("g2")
	q.AddSong(&song.Song{ID: "A"})
	_, err := d.Start(q)
	assert.True(t, errors.Is(err, ErrNoTransport))
	assert.False(t, q.IsPlaying())
}

func TestDriver_SkipIgnoresStaleCallback(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	h.start(t)
	h.waitPlays(t, 1)

	skipped, err := h.driver.Skip("g1")
	require.NoError(t, err)
	assert.Equal(t, "A", skipped.ID)
	h.waitPlays(t, 2)

	h.transport.finish(0, nil) // late end-of-file from A
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"A.mp3", "B.mp3"}, h.transport.played())
	assert.Equal(t, []string{"B", "C"}, h.queueIDs())
	assert.Equal(t, []string{"A.mp3"}, h.reclaimer.scheduled())
	h.transport.mu.Lock()
	assert.Equal(t, 1, h.transport.stops)
	h.transport.mu.Unlock()
}

func TestDriver_SkipIgnoresSongLoop(t *testing.T) {
	h := newHarness(t, "A", "B")
	require.NoError(t, h.queue.SetLoop(queue.LoopSong))
	h.start(t)
	h.waitPlays(t, 1)

	_, err := h.driver.Skip("g1")
	require.NoError(t, err)
	h.waitPlays(t, 2)
	assert.Equal(t, []string{"A.mp3", "B.mp3"}, h.transport.played())
}

func TestDriver_SkipNothingPlaying(t *testing.T) {
	h := newHarness(t)
	_, err := h.driver.Skip("g1")
	assert.True(t, errors.Is(err, ErrNothingPlaying))
	_, err = h.driver.Skip("unknown")
	assert.True(t, errors.Is(err, ErrNothingPlaying))
}

func TestDriver_CacheHit(t *testing.T) {
	h := newHarness(t, "A")
	path := filepath.Join(h.downloader.dir, "A.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	h.queue.CompleteFetch(h.queue.Current(), path, nil)

	h.start(t)
	h.waitPlays(t, 1)
	require.Eventually(t, func() bool { return len(h.eventsOf(EventNowPlaying)) == 1 }, time.Second, time.Millisecond)

	assert.True(t, h.eventsOf(EventNowPlaying)[0].Cached)
	assert.Empty(t, h.downloader.downloads())
	assert.Empty(t, h.eventsOf(EventDownloadProgress))
}

func TestDriver_DownloadProgressEvents(t *testing.T) {
	h := newHarness(t, "A")
	h.start(t)
	h.waitPlays(t, 1)

	require.Eventually(t, func() bool { return len(h.eventsOf(EventDownloadProgress)) == 1 }, time.Second, time.Millisecond)
	e := h.eventsOf(EventDownloadProgress)[0]
	assert.Equal(t, "A", e.Song.ID)
	assert.InDelta(t, 50.0, e.Percent, 0.001)
}

func TestDriver_StallsWhenLoopingQueueAllFail(t *testing.T) {
	h := newHarness(t, "A", "B")
	require.NoError(t, h.queue.SetLoop(queue.LoopQueue))
	h.downloader.fail["A"] = true
	h.downloader.fail["B"] = true
	h.start(t)

	require.Eventually(t, func() bool { return len(h.eventsOf(EventPlaybackStalled)) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, h.eventsOf(EventPlaybackFailed), 2)
	assert.False(t, h.queue.IsPlaying())
	assert.Equal(t, 2, h.queue.Len())
}

func TestDriver_StallRunsIdleHandler(t *testing.T) {
	h := newHarness(t, "A", "B")
	idle := make(chan string, 1)
	h.driver.OnIdle(func(q *queue.Queue) { idle <- q.GuildID() })
	require.NoError(t, h.queue.SetLoop(queue.LoopQueue))
	h.downloader.fail["A"] = true
	h.downloader.fail["B"] = true
	h.start(t)

	select {
	case guildID := <-idle:
		assert.Equal(t, "g1", guildID)
	case <-time.After(time.Second):
		t.Fatal("idle handler not called after stall")
	}
	assert.True(t, h.driver.Connected("g1"))
	require.Eventually(t, func() bool { return len(h.eventsOf(EventPlaybackStalled)) == 1 }, time.Second, time.Millisecond)
}

func TestDriver_SkipWhilePaused(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.start(t)
	h.waitPlays(t, 1)
	require.NoError(t, h.driver.Pause("g1"))

	_, err := h.driver.Skip("g1")
	require.NoError(t, err)
	h.waitPlays(t, 2)
	assert.False(t, h.queue.IsPaused(), "the next song starts unpaused")

	require.NoError(t, h.driver.Pause("g1"))
	h.transport.mu.Lock()
	assert.True(t, h.transport.paused, "pause reaches the transport")
	h.transport.mu.Unlock()
	require.NoError(t, h.driver.Resume("g1"))
	assert.False(t, h.queue.IsPaused())
}

func TestDriver_SkipDuringDownloadReleasesFile(t *testing.T) {
	h := newHarness(t, "A", "B")
	release := make(chan struct{})
	h.downloader.block["A"] = release
	h.start(t)
	require.Eventually(t, func() bool { return len(h.downloader.downloads()) == 1 }, time.Second, time.Millisecond)

	skipped, err := h.driver.Skip("g1")
	require.NoError(t, err)
	assert.Equal(t, "A", skipped.ID)
	h.waitPlays(t, 1)
	assert.Empty(t, h.reclaimer.scheduled(), "nothing downloaded yet")

	close(release)
	require.Eventually(t, func() bool {
		return slices.Contains(h.reclaimer.scheduled(), "A.mp3")
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"B.mp3"}, h.transport.played())
	assert.Equal(t, []string{"B"}, h.queueIDs())
}

func TestDriver_PauseResume(t *testing.T) {
	h := newHarness(t, "A")
	assert.True(t, errors.Is(h.driver.Pause("g1"), ErrNotPlaying))

	h.start(t)
	h.waitPlays(t, 1)

	require.NoError(t, h.driver.Pause("g1"))
	assert.True(t, h.queue.IsPaused())
	state, cur := h.driver.State("g1")
	assert.Equal(t, StatePaused, state)
	assert.Equal(t, "A", cur.ID)

	require.NoError(t, h.driver.Resume("g1"))
	assert.False(t, h.queue.IsPaused())
	assert.True(t, errors.Is(h.driver.Resume("g1"), ErrNotPaused))
	require.Eventually(t, func() bool { return len(h.eventsOf(EventStateChanged)) == 2 }, time.Second, time.Millisecond)
}

func TestDriver_ApplyVolume(t *testing.T) {
	h := newHarness(t, "A")
	require.NoError(t, h.queue.SetVolume(80))
	h.driver.ApplyVolume("g1")

	h.transport.mu.Lock()
	defer h.transport.mu.Unlock()
	assert.InDelta(t, 0.8, h.transport.volume, 0.0001)
}

func TestDriver_Teardown(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.start(t)
	h.waitPlays(t, 1)

	h.driver.Teardown("g1")

	_, ok := h.registry.Get("g1")
	assert.False(t, ok)
	assert.False(t, h.driver.Connected("g1"))
	assert.Equal(t, []string{"A.mp3"}, h.reclaimer.scheduled())
	h.transport.mu.Lock()
	assert.True(t, h.transport.closed)
	h.transport.mu.Unlock()
	h.prefetcher.mu.Lock()
	assert.GreaterOrEqual(t, h.prefetcher.stops, 1)
	h.prefetcher.mu.Unlock()

	h.transport.finish(0, nil) // must be ignored
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, h.transport.played(), 1)
}
