package playback

import (
	"context"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrPlayback       = errors.New("playback failed")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoTransport    = errors.New("not connected to a voice channel")
	ErrNotPlaying     = errors.New("not playing")
	ErrNotPaused      = errors.New("not paused")

	errStale = errors.New("stale playback generation")
)

// Config holds driver configuration.
type Config struct {
	EventBuffer int // Capacity of the event channel
}

// Driver moves each guild's queue from one song to the next.
type Driver struct {
	mu      sync.Mutex
	players map[string]*guildPlayer

	registry   *queue.Registry
	downloader Downloader
	reclaimer  Reclaimer
	prefetcher Prefetcher

	idleMu sync.RWMutex
	onIdle func(q *queue.Queue)

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDriver creates a playback driver.
func NewDriver(registry *queue.Registry, downloader Downloader, reclaimer Reclaimer, prefetcher Prefetcher, config Config) *Driver {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		players:    make(map[string]*guildPlayer),
		registry:   registry,
		downloader: downloader,
		reclaimer:  reclaimer,
		prefetcher: prefetcher,
		eventCh:    make(chan Event, config.EventBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Events returns the event channel.
func (d *Driver) Events() <-chan Event {
	return d.eventCh
}

// OnIdle registers fn to run when a guild stops playing on its own:
// the queue played out or every song in a looped queue failed.
func (d *Driver) OnIdle(fn func(q *queue.Queue)) {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	d.onIdle = fn
}

// Attach sets the transport used for a guild, closing any previous one.
func (d *Driver) Attach(guildID string, t Transport) {
	p := d.player(guildID)
	p.mu.Lock()
	old := p.transport
	p.transport = t
	p.mu.Unlock()

	if old != nil && old != t {
		if err := old.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to close previous transport: guild=%s", guildID)
		}
	}
}

// Connected reports whether the guild has a transport.
func (d *Driver) Connected(guildID string) bool {
	d.mu.Lock()
	p, ok := d.players[guildID]
	d.mu.Unlock()
	return ok && p.hasTransport()
}

// State returns the guild's playback state and the song it concerns.
func (d *Driver) State(guildID string) (State, *song.Song) {
	d.mu.Lock()
	p, ok := d.players[guildID]
	d.mu.Unlock()
	if !ok {
		return StateIdle, nil
	}
	return p.snapshot()
}

// Start plays q's current song unless q is already playing.
// The playing flag is claimed before Start returns; fetching and playback continue in the background.
func (d *Driver) Start(q *queue.Queue) (bool, error) {
	p := d.player(q.GuildID())
	if !p.hasTransport() {
		return false, ErrNoTransport
	}
	if !q.TryStartPlaying() {
		return false, nil
	}
	d.spawn(q, p, p.bump())
	return true, nil
}

// Skip ends the current song and moves on. Song loop does not apply to a skip.
func (d *Driver) Skip(guildID string) (*song.Song, error) {
	q, ok := d.registry.Get(guildID)
	if !ok {
		return nil, ErrNothingPlaying
	}
	cur := q.Current()
	if cur == nil {
		return nil, ErrNothingPlaying
	}

	p := d.player(guildID)
	gen := p.bump()
	p.stopTransport()

	q.AddToHistory(cur)
	if q.Loop() == queue.LoopQueue {
		q.RotateCurrentIf(cur)
	} else if q.PopCurrentIf(cur) {
		d.release(q, cur)
	}

	if !p.hasTransport() {
		q.SetPlaying(false)
		return cur, nil
	}
	q.SetPlaying(true)
	d.spawn(q, p, gen)
	return cur, nil
}

// Pause holds the guild's playback.
func (d *Driver) Pause(guildID string) error {
	q, ok := d.registry.Get(guildID)
	if !ok || !q.IsPlaying() {
		return ErrNotPlaying
	}
	if q.IsPaused() {
		return nil
	}

	p := d.player(guildID)
	p.mu.Lock()
	if p.transport == nil || !p.transport.Pause() {
		p.mu.Unlock()
		return ErrNotPlaying
	}
	p.state = StatePaused
	cur := p.current
	p.mu.Unlock()

	q.SetPaused(true)
	d.sendEvent(Event{Type: EventStateChanged, GuildID: guildID, Song: cur, State: StatePaused})
	return nil
}

// Resume continues paused playback.
func (d *Driver) Resume(guildID string) error {
	q, ok := d.registry.Get(guildID)
	if !ok || !q.IsPaused() {
		return ErrNotPaused
	}

	p := d.player(guildID)
	p.mu.Lock()
	if p.transport == nil || !p.transport.Resume() {
		p.mu.Unlock()
		return ErrNotPaused
	}
	p.state = StatePlaying
	cur := p.current
	p.mu.Unlock()

	q.SetPaused(false)
	d.sendEvent(Event{Type: EventStateChanged, GuildID: guildID, Song: cur, State: StatePlaying})
	return nil
}

// ApplyVolume pushes the queue's volume to the guild's transport.
func (d *Driver) ApplyVolume(guildID string) {
	q, ok := d.registry.Get(guildID)
	if !ok {
		return
	}
	p := d.player(guildID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport != nil {
		p.transport.SetVolume(q.Volume())
	}
}

// Teardown stops playback, discards the guild's queue and closes its transport.
func (d *Driver) Teardown(guildID string) {
	d.prefetcher.Stop(guildID)

	d.mu.Lock()
	p, ok := d.players[guildID]
	delete(d.players, guildID)
	d.mu.Unlock()

	if q, found := d.registry.Get(guildID); found {
		for _, s := range q.Clear() {
			d.release(q, s)
		}
		d.registry.Remove(guildID, q)
	}

	if ok {
		p.bump()
		p.mu.Lock()
		t := p.transport
		p.transport = nil
		p.state = StateIdle
		p.current = nil
		p.mu.Unlock()
		if t != nil {
			t.Stop()
			if err := t.Close(); err != nil {
				zlog.Warn().Err(err).Msgf("playback: failed to close transport: guild=%s", guildID)
			}
		}
	}
	zlog.Info().Msgf("playback: torn down: guild=%s", guildID)
}

// Close tears down every guild and waits for background work to finish.
func (d *Driver) Close() {
	d.mu.Lock()
	guilds := make([]string, 0, len(d.players))
	for id := range d.players {
		guilds = append(guilds, id)
	}
	d.mu.Unlock()

	d.cancel()
	for _, id := range guilds {
		d.Teardown(id)
	}
	d.wg.Wait()
}

func (d *Driver) player(guildID string) *guildPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.players[guildID]
	if !ok {
		p = &guildPlayer{}
		d.players[guildID] = p
	}
	return p
}

func (d *Driver) spawn(q *queue.Queue, p *guildPlayer, gen uint64) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.playCurrent(q, p, gen)
	}()
}

// playCurrent plays position 0, advancing past songs that fail.
func (d *Driver) playCurrent(q *queue.Queue, p *guildPlayer, gen uint64) {
	guildID := q.GuildID()
	failures := 0

	for {
		if !p.isGeneration(gen) || d.ctx.Err() != nil {
			return
		}
		if q.StopIfEmpty() {
			d.finish(q, p, gen)
			return
		}
		s := q.Current()
		if s == nil {
			continue
		}

		p.setState(gen, StateLoading, s)
		path, cached, err := d.fetch(q, s)
		if err == nil {
			err = p.play(gen, s, path, q.Volume(), func(err error) {
				d.onDone(q, p, s, gen, err)
			})
		}
		if errors.Is(err, errStale) || (err != nil && !p.isGeneration(gen)) || d.ctx.Err() != nil {
			// A song skipped mid-download left the queue without a path to release
			if !q.Contains(s) {
				d.release(q, s)
			}
			return
		}
		if err != nil {
			failures++
			zlog.Error().Err(err).Msgf("playback: failed: guild=%s, title=%s", guildID, s.Title)
			d.sendEvent(Event{Type: EventPlaybackFailed, GuildID: guildID, Song: s, State: StateIdle, Err: err})
			d.advance(q, s, true)

			if q.Loop() == queue.LoopQueue && failures >= q.Len() && q.Len() > 0 {
				d.stall(q, p, gen)
				return
			}
			continue
		}

		zlog.Info().Msgf("playback: now playing: guild=%s, title=%s, cached=%t", guildID, s.Title, cached)
		d.sendEvent(Event{Type: EventNowPlaying, GuildID: guildID, Song: s, State: StatePlaying, Cached: cached})
		d.prefetcher.Start(q)
		return
	}
}

// fetch returns a local file for s, downloading it with progress when needed.
func (d *Driver) fetch(q *queue.Queue, s *song.Song) (string, bool, error) {
	if st := q.FetchStateOf(s); st.Status == song.Fetched && fileExists(st.Path) {
		return st.Path, true, nil
	}

	q.BeginFetch(s)
	res, err := d.downloader.Download(d.ctx, s.URL, func(pr ytdlp.Progress) {
		d.sendProgress(Event{
			Type:    EventDownloadProgress,
			GuildID: q.GuildID(),
			Song:    s,
			State:   StateLoading,
			Percent: pr.Percent,
		})
	})
	if err != nil {
		q.CompleteFetch(s, "", err)
		return "", false, err
	}
	if !fileExists(res.Path) {
		q.CompleteFetch(s, "", ErrPlayback)
		return "", false, errors.Wrapf(ErrPlayback, "audio file missing after download: %s", res.Path)
	}
	q.CompleteFetch(s, res.Path, nil)
	return res.Path, res.Cached, nil
}

// onDone handles the transport's end-of-file signal.
func (d *Driver) onDone(q *queue.Queue, p *guildPlayer, s *song.Song, gen uint64, err error) {
	newGen, ok := p.next(gen)
	if !ok {
		return
	}

	if err != nil {
		zlog.Error().Err(err).Msgf("playback: transport error: guild=%s, title=%s", q.GuildID(), s.Title)
		d.sendEvent(Event{Type: EventPlaybackFailed, GuildID: q.GuildID(), Song: s, State: StateIdle, Err: errors.Mark(err, ErrPlayback)})
	} else {
		d.sendEvent(Event{Type: EventTrackEnded, GuildID: q.GuildID(), Song: s, State: StateIdle})
	}
	d.advance(q, s, err != nil)
	d.spawn(q, p, newGen)
}

// advance applies the loop mode to the song that just finished.
// A failed song is not replayed even when looping a single song.
func (d *Driver) advance(q *queue.Queue, s *song.Song, failed bool) {
	q.AddToHistory(s)

	switch mode := q.Loop(); {
	case mode == queue.LoopSong && !failed:
		return
	case mode == queue.LoopQueue:
		q.RotateCurrentIf(s)
	default:
		if q.PopCurrentIf(s) {
			d.release(q, s)
		}
	}
}

// release schedules the file of a song that left the queue for deletion.
func (d *Driver) release(q *queue.Queue, s *song.Song) {
	path := s.FilePath()
	if path == "" || q.References(path) {
		return
	}
	d.reclaimer.ScheduleDelete(path)
}

func (d *Driver) finish(q *queue.Queue, p *guildPlayer, gen uint64) {
	p.setState(gen, StateIdle, nil)
	d.prefetcher.Stop(q.GuildID())
	zlog.Info().Msgf("playback: queue finished: guild=%s", q.GuildID())
	d.sendEvent(Event{Type: EventQueueEmpty, GuildID: q.GuildID(), State: StateIdle})
	d.idle(q)
}

func (d *Driver) stall(q *queue.Queue, p *guildPlayer, gen uint64) {
	q.SetPlaying(false)
	p.setState(gen, StateIdle, nil)
	d.prefetcher.Stop(q.GuildID())
	zlog.Warn().Msgf("playback: every song failed, stopping: guild=%s", q.GuildID())
	d.sendEvent(Event{Type: EventPlaybackStalled, GuildID: q.GuildID(), State: StateIdle})
	d.idle(q)
}

func (d *Driver) idle(q *queue.Queue) {
	d.idleMu.RLock()
	fn := d.onIdle
	d.idleMu.RUnlock()
	if fn != nil {
		fn(q)
	}
}

// sendEvent delivers e unless the driver is closed.
func (d *Driver) sendEvent(e Event) {
	select {
	case d.eventCh <- e:
	case <-d.ctx.Done():
	}
}

// sendProgress delivers e only if there is room; progress is lossy.
func (d *Driver) sendProgress(e Event) {
	select {
	case d.eventCh <- e:
	case <-d.ctx.Done():
	default:
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
