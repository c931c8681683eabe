package playback

import (
	"sync"

	"github.com/osa030/jukebot/internal/domain/song"
)

// guildPlayer holds one guild's transport and playback generation.
// Every skip, stop or natural transition bumps the generation; callbacks
// and workers carrying an older generation are discarded.
type guildPlayer struct {
	mu         sync.Mutex
	transport  Transport
	generation uint64
	state      State
	current    *song.Song
}

func (p *guildPlayer) bump() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	return p.generation
}

func (p *guildPlayer) isGeneration(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation == gen
}

// next moves from gen to a new generation. It returns false if gen is stale.
func (p *guildPlayer) next(gen uint64) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen {
		return 0, false
	}
	p.generation++
	return p.generation, true
}

func (p *guildPlayer) setState(gen uint64, state State, s *song.Song) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen {
		return
	}
	p.state = state
	p.current = s
}

func (p *guildPlayer) hasTransport() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport != nil
}

// play hands path to the transport if gen is still current.
func (p *guildPlayer) play(gen uint64, s *song.Song, path string, volume float64, done func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != gen {
		return errStale
	}
	if p.transport == nil {
		return ErrNoTransport
	}
	if err := p.transport.Play(path, volume, done); err != nil {
		return err
	}
	p.state = StatePlaying
	p.current = s
	return nil
}

func (p *guildPlayer) stopTransport() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport != nil {
		p.transport.Stop()
	}
	p.state = StateIdle
	p.current = nil
}

func (p *guildPlayer) snapshot() (State, *song.Song) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.current
}
