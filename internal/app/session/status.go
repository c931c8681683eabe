package session

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/osa030/jukebot/internal/app/queue"
)

// GuildStatus represents one guild's session.
type GuildStatus struct {
	GuildID       string `json:"guild_id"`
	Presence      string `json:"presence"`
	Playback      string `json:"playback"`
	AlwaysOn      bool   `json:"always_on"`
	Current       string `json:"current,omitempty"`
	Songs         int    `json:"songs"`
	TotalDuration int    `json:"total_duration_sec"`
	Loop          string `json:"loop"`
	Volume        int    `json:"volume"`
}

// Status represents the current state of every guild and of the background workers.
type Status struct {
	Guilds          []GuildStatus `json:"guilds"`
	PrefetchActive  int           `json:"prefetch_active"`
	PendingDeletes  int           `json:"pending_deletes"`
	PendingFiles    []string      `json:"pending_files"`
	Subscribers     int           `json:"subscribers"`
	ConnectedGuilds int           `json:"connected_guilds"`
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() *Status {
	guilds := lo.Map(m.registry.All(), func(q *queue.Queue, _ int) GuildStatus {
		return m.guildStatus(q)
	})
	slices.SortFunc(guilds, func(a, b GuildStatus) int { return strings.Compare(a.GuildID, b.GuildID) })

	connected := lo.CountBy(guilds, func(g GuildStatus) bool {
		return m.driver.Connected(g.GuildID)
	})

	pending := m.reclaimer.Status()
	return &Status{
		Guilds:          guilds,
		PrefetchActive:  m.prefetcher.Status().Active,
		PendingDeletes:  pending.Pending,
		PendingFiles:    pending.Files,
		Subscribers:     m.notification.SubscriberCount(),
		ConnectedGuilds: connected,
	}
}

func (m *Manager) guildStatus(q *queue.Queue) GuildStatus {
	guildID := q.GuildID()
	st, _ := m.driver.State(guildID)
	alwaysOn, _ := m.stateMgr.AlwaysOn(guildID)
	gs := GuildStatus{
		GuildID:       guildID,
		Presence:      m.stateMgr.Phase(guildID).String(),
		Playback:      st.String(),
		AlwaysOn:      alwaysOn,
		Songs:         q.Len(),
		TotalDuration: q.TotalDuration(),
		Loop:          q.Loop().String(),
		Volume:        q.VolumePercent(),
	}
	if cur := q.Current(); cur != nil {
		gs.Current = cur.Title
	}
	return gs
}
