package state

import (
	"sync"
	"time"
)

// timer is the part of *time.Timer the manager uses.
type timer interface {
	Stop() bool
}

type guild struct {
	phase          Phase
	alwaysOn       bool
	alwaysOnVoice  string
	idleTimer      timer
	idleGeneration uint64
}

// Manager manages guild presence state with thread-safe access.
type Manager struct {
	mu     sync.Mutex
	guilds map[string]*guild

	afterFunc func(d time.Duration, f func()) timer
}

// New creates a new state manager.
func New() *Manager {
	return &Manager{
		guilds: make(map[string]*guild),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

func (m *Manager) guildLocked(guildID string) *guild {
	g, ok := m.guilds[guildID]
	if !ok {
		g = &guild{}
		m.guilds[guildID] = g
	}
	return g
}

// Phase returns the guild's presence phase.
func (m *Manager) Phase(guildID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.guilds[guildID]; ok {
		return g.phase
	}
	return PhaseDisconnected
}

// SetActive marks the guild connected and in use, cancelling any idle timer.
func (m *Manager) SetActive(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.guildLocked(guildID)
	g.stopIdleLocked()
	g.phase = PhaseActive
}

// SetDisconnected marks the guild disconnected, cancelling any idle timer.
// The 24/7 setting is kept.
func (m *Manager) SetDisconnected(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok {
		return
	}
	g.stopIdleLocked()
	g.phase = PhaseDisconnected
	if !g.alwaysOn {
		delete(m.guilds, guildID)
	}
}

// AlwaysOn reports whether 24/7 mode is on and the voice channel it stays in.
func (m *Manager) AlwaysOn(guildID string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.guilds[guildID]; ok {
		return g.alwaysOn, g.alwaysOnVoice
	}
	return false, ""
}

// SetAlwaysOn switches 24/7 mode. Turning it on cancels any idle timer.
func (m *Manager) SetAlwaysOn(guildID string, enabled bool, voiceChannelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.guildLocked(guildID)
	g.alwaysOn = enabled
	g.alwaysOnVoice = voiceChannelID
	if enabled && g.phase == PhaseIdle {
		g.stopIdleLocked()
		g.phase = PhaseActive
	}
}

// ArmIdle starts the idle timer for a connected guild. When it fires, expire runs
// unless the guild became active, was disconnected or switched to 24/7 meanwhile.
// It returns false when the guild is in 24/7 mode or not connected.
func (m *Manager) ArmIdle(guildID string, timeout time.Duration, expire func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok || g.alwaysOn || g.phase == PhaseDisconnected {
		return false
	}
	g.stopIdleLocked()
	g.phase = PhaseIdle
	gen := g.idleGeneration
	g.idleTimer = m.afterFunc(timeout, func() {
		m.mu.Lock()
		cur, ok := m.guilds[guildID]
		fire := ok && cur == g && g.phase == PhaseIdle && g.idleGeneration == gen && !g.alwaysOn
		if fire {
			g.idleTimer = nil
		}
		m.mu.Unlock()
		if fire {
			expire()
		}
	})
	return true
}

// DisarmIdle cancels the idle timer and reports whether one was armed.
func (m *Manager) DisarmIdle(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok || g.phase != PhaseIdle {
		return false
	}
	g.stopIdleLocked()
	g.phase = PhaseActive
	return true
}

// Close cancels every idle timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.guilds {
		g.stopIdleLocked()
	}
}

func (g *guild) stopIdleLocked() {
	g.idleGeneration++
	if g.idleTimer != nil {
		g.idleTimer.Stop()
		g.idleTimer = nil
	}
}
