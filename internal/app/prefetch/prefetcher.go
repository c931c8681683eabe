// Package prefetch downloads upcoming songs in the background so they are
// ready before the player reaches them.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// Downloader fetches audio files without progress reporting.
type Downloader interface {
	PreDownload(ctx context.Context, url string) (*ytdlp.Result, error)
}

// Config holds prefetch timing.
type Config struct {
	IdlePoll time.Duration // Wait when nothing needs fetching
	BusyPoll time.Duration // Wait when only the playing song is unfetched
	Cooldown time.Duration // Wait after every download attempt
}

// DefaultConfig returns 2s idle, 5s busy and 3s cooldown intervals.
func DefaultConfig() Config {
	return Config{
		IdlePoll: 2 * time.Second,
		BusyPoll: 5 * time.Second,
		Cooldown: 3 * time.Second,
	}
}

// Status is a snapshot of the running loops.
type Status struct {
	Active int
	Guilds []string
}

type loop struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (l *loop) halt() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Prefetcher runs at most one download loop per guild.
type Prefetcher struct {
	mu     sync.Mutex
	active map[string]*loop

	downloader Downloader
	config     Config

	// Downloads run under ctx rather than the loop's stop signal, so a stopped
	// loop still records the file it was fetching.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a prefetcher.
func New(downloader Downloader, config Config) *Prefetcher {
	def := DefaultConfig()
	if config.IdlePoll <= 0 {
		config.IdlePoll = def.IdlePoll
	}
	if config.BusyPoll <= 0 {
		config.BusyPoll = def.BusyPoll
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetcher{
		active:     make(map[string]*loop),
		downloader: downloader,
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins prefetching for q's guild. It returns false if a loop is already running.
func (p *Prefetcher) Start(q *queue.Queue) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	guildID := q.GuildID()
	if _, ok := p.active[guildID]; ok {
		return false
	}
	l := &loop{stop: make(chan struct{})}
	p.active[guildID] = l

	p.wg.Add(1)
	go p.run(q, l)
	zlog.Debug().Msgf("prefetch: started: guild=%s", guildID)
	return true
}

// Stop asks the guild's loop to exit. A download already in flight finishes.
func (p *Prefetcher) Stop(guildID string) {
	p.mu.Lock()
	l, ok := p.active[guildID]
	if ok {
		delete(p.active, guildID)
	}
	p.mu.Unlock()

	if ok {
		l.halt()
		zlog.Debug().Msgf("prefetch: stopped: guild=%s", guildID)
	}
}

// Running reports whether the guild has an active loop.
func (p *Prefetcher) Running(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[guildID]
	return ok
}

// Status returns the active loops.
func (p *Prefetcher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	guilds := make([]string, 0, len(p.active))
	for id := range p.active {
		guilds = append(guilds, id)
	}
	return Status{Active: len(guilds), Guilds: guilds}
}

// Close stops every loop, cancels in-flight downloads and waits for the loops to exit.
func (p *Prefetcher) Close() {
	p.mu.Lock()
	for id, l := range p.active {
		l.halt()
		delete(p.active, id)
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Prefetcher) run(q *queue.Queue, l *loop) {
	defer p.wg.Done()
	defer p.release(q.GuildID(), l)

	for q.Len() > 0 {
		s, headPending := q.ClaimNextFetch()
		if s == nil {
			wait := p.config.IdlePoll
			if headPending {
				wait = p.config.BusyPoll
			}
			if !p.wait(l, wait) {
				return
			}
			continue
		}

		res, err := p.downloader.PreDownload(p.ctx, s.URL)
		if err != nil {
			q.CompleteFetch(s, "", err)
			zlog.Warn().Err(err).Msgf("prefetch: download failed: guild=%s, title=%s", q.GuildID(), s.Title)
		} else {
			q.CompleteFetch(s, res.Path, nil)
			zlog.Info().Msgf("prefetch: ready: guild=%s, title=%s, cached=%t", q.GuildID(), s.Title, res.Cached)
		}

		if !p.wait(l, p.config.Cooldown) {
			return
		}
	}
	zlog.Debug().Msgf("prefetch: queue empty, exiting: guild=%s", q.GuildID())
}

// wait sleeps for d and returns false if the loop was stopped meanwhile.
func (p *Prefetcher) wait(l *loop, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.stop:
		return false
	case <-t.C:
		return true
	}
}

func (p *Prefetcher) release(guildID string, l *loop) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[guildID] == l {
		delete(p.active, guildID)
	}
}
