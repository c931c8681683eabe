// Package session provides the session manager: the command boundary between
// the chat front end and the per-guild playback core.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/app/prefetch"
	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/app/reclaim"
	"github.com/osa030/jukebot/internal/app/session/state"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/osa030/jukebot/internal/infra/config"
	"github.com/osa030/jukebot/internal/infra/store"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

var (
	ErrNotInVoice            = errors.New("you need to be in a voice channel")
	ErrDifferentVoiceChannel = errors.New("the bot is playing in another voice channel")
	ErrNoQueue               = errors.New("there is no queue in this server")
	ErrInvalidPosition       = errors.New("invalid queue position")
)

// maxPlaylistSongs caps a single playlist request.
const maxPlaylistSongs = 50

// Catalog looks up songs.
type Catalog interface {
	Resolve(ctx context.Context, url string) (*ytdlp.Metadata, error)
	Search(ctx context.Context, query string, limit int) ([]*ytdlp.SearchResult, error)
	Playlist(ctx context.Context, url string, limit int) ([]*ytdlp.Metadata, error)
}

// Downloader fetches audio for both playback and prefetching.
type Downloader interface {
	playback.Downloader
	prefetch.Downloader
}

// Connector opens a voice connection for a guild.
type Connector interface {
	Connect(ctx context.Context, guildID, voiceChannelID string) (playback.Transport, error)
}

// SettingsStore persists 24/7 settings.
type SettingsStore interface {
	SetAlwaysOn(ctx context.Context, guildID, channelID string, enabled bool) error
	EnabledAlwaysOn(ctx context.Context) ([]store.AlwaysOn, error)
}

// Deps are the external collaborators of the manager.
type Deps struct {
	Catalog    Catalog
	Downloader Downloader
	Connector  Connector
	Settings   SettingsStore
}

// Manager manages every guild's music session.
type Manager struct {
	// Configuration
	config *config.Config

	// Components
	registry     *queue.Registry
	driver       *playback.Driver
	prefetcher   *prefetch.Prefetcher
	reclaimer    *reclaim.Reclaimer
	sweeper      *reclaim.Sweeper
	stateMgr     *state.Manager
	filterChain  *filter.Chain
	notification *notification.Manager

	catalog   Catalog
	connector Connector
	settings  SettingsStore

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	filterChain, err := filter.Build(cfg.IsFilterEnabled, cfg.FilterSettings)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up filters")
	}

	registry := queue.NewRegistry(queue.Config{
		DefaultVolume: cfg.Playback.DefaultVolume,
		HistorySize:   cfg.Playback.HistorySize,
	})
	reclaimer := reclaim.New(reclaim.Config{
		InitialDelay: cfg.Reclaim.InitialDelay(),
		Retry: reclaim.RetryPolicy{
			MaxAttempts: cfg.Reclaim.MaxAttempts,
			Step:        cfg.Reclaim.BackoffStep(),
		},
	})
	prefetcher := prefetch.New(deps.Downloader, prefetch.Config{
		IdlePoll: cfg.Prefetch.IdlePoll(),
		BusyPoll: cfg.Prefetch.BusyPoll(),
		Cooldown: cfg.Prefetch.Cooldown(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		registry:     registry,
		driver:       playback.NewDriver(registry, deps.Downloader, reclaimer, prefetcher, playback.Config{}),
		prefetcher:   prefetcher,
		reclaimer:    reclaimer,
		stateMgr:     state.New(),
		filterChain:  filterChain,
		notification: notification.NewManager(),
		catalog:      deps.Catalog,
		connector:    deps.Connector,
		settings:     deps.Settings,
		ctx:          ctx,
		cancel:       cancel,
	}
	m.sweeper = reclaim.NewSweeper(cfg.Downloads.Dir, cfg.Downloads.AudioFormat, m.inUse)
	m.driver.OnIdle(func(q *queue.Queue) {
		m.goIdle(q.GuildID(), state.IdleQueueEmpty)
	})
	return m, nil
}

// Start starts the event loop and the periodic sweep, and rejoins 24/7 channels.
func (m *Manager) Start(ctx context.Context) error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.playbackLoop()
	}()

	if interval := m.config.Downloads.SweepInterval(); interval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.sweeper.Run(m.ctx, interval, m.config.Downloads.MaxAge())
		}()
	}

	return m.restoreAlwaysOn(ctx)
}

// Close tears down every guild and stops background work.
func (m *Manager) Close() {
	m.stateMgr.Close()
	m.driver.Close()
	m.prefetcher.Close()
	m.reclaimer.Close()
	m.cancel()
	m.wg.Wait()
	m.notification.Close()
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// PlayRequest is a request to queue a song or playlist.
type PlayRequest struct {
	GuildID        string
	TextChannelID  string
	VoiceChannelID string // The requester's voice channel
	Requester      song.Requester
	Query          string // URL or search terms
	Next           bool   // Insert after the current song instead of at the end
}

// PlayResult is the outcome of a play request.
type PlayResult struct {
	Accepted bool
	Code     string // Rejection code when not accepted
	Message  string
	Song     *song.Song
	Position int  // Queue position; 0 is the playing song
	Started  bool // Playback started with this song
}

// Play looks up a song, runs it through the filters and queues it.
func (m *Manager) Play(ctx context.Context, req PlayRequest) (*PlayResult, error) {
	if req.VoiceChannelID == "" {
		return nil, ErrNotInVoice
	}
	if err := m.checkChannel(req.GuildID, req.VoiceChannelID); err != nil {
		return nil, err
	}

	meta, err := m.lookup(ctx, req.Query)
	if err != nil {
		zlog.Warn().Err(err).Msgf("play request failed: guild=%s query=%q", req.GuildID, req.Query)
		return nil, err
	}
	s := newSong(meta, req.Requester)

	q := m.registry.GetOrCreate(req.GuildID)
	result := m.filterChain.Execute(ctx, filter.Request{
		GuildID:   req.GuildID,
		Requester: req.Requester,
		Song:      s,
		Source:    filter.SourceCommand,
	}, q)
	zlog.Info().Msgf("play request: guild=%s requester=%s title=%q result=%t code=%s",
		req.GuildID, req.Requester.Name, s.Title, result.Accepted, result.Code)
	if !result.Accepted {
		return &PlayResult{Code: result.Code, Message: m.config.GetMessage(result.Code), Song: s}, nil
	}

	if err := m.connect(ctx, q, req.TextChannelID, req.VoiceChannelID); err != nil {
		m.dropUnused(q)
		return nil, err
	}

	var position int
	if req.Next {
		position = q.InsertNext(s)
	} else {
		position = q.AddSong(s) - 1
	}

	started, err := m.play(q)
	if err != nil {
		return nil, err
	}
	return &PlayResult{Accepted: true, Song: s, Position: position, Started: started}, nil
}

// PlaylistResult is the outcome of a playlist request.
type PlaylistResult struct {
	Added    []*song.Song
	Rejected int
	Duration int // Seconds added
	Started  bool
}

// PlayPlaylist queues up to limit entries of a playlist. A limit of 0 uses the configured default.
func (m *Manager) PlayPlaylist(ctx context.Context, req PlayRequest, limit int) (*PlaylistResult, error) {
	if req.VoiceChannelID == "" {
		return nil, ErrNotInVoice
	}
	if err := m.checkChannel(req.GuildID, req.VoiceChannelID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.config.Playback.PlaylistLimit
	}
	limit = min(limit, maxPlaylistSongs)

	entries, err := m.catalog.Playlist(ctx, req.Query, limit)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playlist request failed: guild=%s url=%s", req.GuildID, req.Query)
		return nil, err
	}

	q := m.registry.GetOrCreate(req.GuildID)
	if err := m.connect(ctx, q, req.TextChannelID, req.VoiceChannelID); err != nil {
		m.dropUnused(q)
		return nil, err
	}

	result := &PlaylistResult{}
	for _, meta := range entries {
		s := newSong(meta, req.Requester)
		r := m.filterChain.Execute(ctx, filter.Request{
			GuildID:   req.GuildID,
			Requester: req.Requester,
			Song:      s,
			Source:    filter.SourcePlaylist,
		}, q)
		if !r.Accepted {
			result.Rejected++
			continue
		}
		q.AddSong(s)
		result.Added = append(result.Added, s)
	}
	result.Duration = lo.SumBy(result.Added, func(s *song.Song) int { return s.Duration })
	zlog.Info().Msgf("playlist request: guild=%s requester=%s added=%d rejected=%d",
		req.GuildID, req.Requester.Name, len(result.Added), result.Rejected)

	if len(result.Added) == 0 {
		if !q.IsPlaying() {
			m.goIdle(req.GuildID, state.IdleQueueEmpty)
		}
		return result, nil
	}
	result.Started, err = m.play(q)
	return result, err
}

// Skip ends the current song.
func (m *Manager) Skip(guildID string) (*song.Song, error) {
	skipped, err := m.driver.Skip(guildID)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("skipped: guild=%s title=%q", guildID, skipped.Title)
	return skipped, nil
}

// StopResult is the outcome of Stop.
type StopResult struct {
	Last    *song.Song
	Cleared int
}

// Stop clears the queue and leaves the voice channel.
// It also works after playback stalled, as long as the bot is still connected.
func (m *Manager) Stop(guildID string) (*StopResult, error) {
	q, ok := m.registry.Get(guildID)
	if !ok || (!q.IsPlaying() && !m.driver.Connected(guildID)) {
		return nil, playback.ErrNothingPlaying
	}
	result := &StopResult{Last: q.Current(), Cleared: q.Len()}
	m.disconnect(guildID, "stopped")
	return result, nil
}

// Pause holds playback.
func (m *Manager) Pause(guildID string) error {
	return m.driver.Pause(guildID)
}

// Resume continues paused playback.
func (m *Manager) Resume(guildID string) error {
	return m.driver.Resume(guildID)
}

// Remove deletes the upcoming song at position.
func (m *Manager) Remove(guildID string, position int) (*song.Song, error) {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return nil, ErrNoQueue
	}
	removed, err := q.RemoveSong(position)
	if err != nil {
		return nil, err
	}
	m.release(q, removed)
	return removed, nil
}

// Clear removes every upcoming song and returns how many were removed.
func (m *Manager) Clear(guildID string) (int, error) {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return 0, ErrNoQueue
	}
	removed := q.ClearUpcoming()
	for _, s := range removed {
		m.release(q, s)
	}
	return len(removed), nil
}

// Move relocates the song at from to position to.
func (m *Manager) Move(guildID string, from, to int) (*song.Song, error) {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return nil, ErrNoQueue
	}
	// The playing song stays where it is
	if q.IsPlaying() && (from == 0 || to == 0) {
		return nil, errors.Mark(errors.Wrapf(ErrInvalidPosition, "from %d to %d", from, to), queue.ErrQueue)
	}
	moved := q.MoveSong(from, to)
	if moved == nil {
		return nil, errors.Mark(errors.Wrapf(ErrInvalidPosition, "from %d to %d", from, to), queue.ErrQueue)
	}
	return moved, nil
}

// Shuffle randomizes the upcoming songs. It reports false when there was nothing to shuffle.
func (m *Manager) Shuffle(guildID string) (bool, error) {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return false, ErrNoQueue
	}
	return q.Shuffle(), nil
}

// SetLoop changes the loop mode.
func (m *Manager) SetLoop(guildID, mode string) (queue.LoopMode, error) {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return queue.LoopOff, ErrNoQueue
	}
	loop, err := queue.ParseLoopMode(mode)
	if err != nil {
		return queue.LoopOff, err
	}
	if err := q.SetLoop(loop); err != nil {
		return queue.LoopOff, err
	}
	return loop, nil
}

// SetVolume changes the volume and applies it to the current song.
func (m *Manager) SetVolume(guildID string, percent int) error {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return ErrNoQueue
	}
	if err := q.SetVolume(percent); err != nil {
		return err
	}
	m.driver.ApplyVolume(guildID)
	return nil
}

// NowPlaying describes the current song.
type NowPlaying struct {
	Song    *song.Song
	State   playback.State
	Volume  int
	Loop    queue.LoopMode
	Next    *song.Song
	Pending int // Songs after the current one
}

// NowPlaying returns the current song.
func (m *Manager) NowPlaying(guildID string) (*NowPlaying, error) {
	q, ok := m.registry.Get(guildID)
	if !ok || q.Current() == nil {
		return nil, playback.ErrNothingPlaying
	}
	st, _ := m.driver.State(guildID)
	np := &NowPlaying{
		Song:    q.Current(),
		State:   st,
		Volume:  q.VolumePercent(),
		Loop:    q.Loop(),
		Pending: max(q.Len()-1, 0),
	}
	if upcoming := q.Upcoming(1); len(upcoming) > 0 {
		np.Next = upcoming[0]
	}
	return np, nil
}

// QueueView is a page of the queue.
type QueueView struct {
	Current       *song.Song
	Upcoming      []*song.Song
	Total         int // Songs in the queue, the current one included
	TotalDuration int // Seconds
	Loop          queue.LoopMode
	Volume        int
}

// Queue returns the current song and up to limit upcoming songs.
func (m *Manager) Queue(guildID string, limit int) (*QueueView, error) {
	q, ok := m.registry.Get(guildID)
	if !ok || q.Len() == 0 {
		return nil, ErrNoQueue
	}
	return &QueueView{
		Current:       q.Current(),
		Upcoming:      q.Upcoming(limit),
		Total:         q.Len(),
		TotalDuration: q.TotalDuration(),
		Loop:          q.Loop(),
		Volume:        q.VolumePercent(),
	}, nil
}

// History returns up to limit recently played songs, most recent first.
func (m *Manager) History(guildID string, limit int) []*song.Song {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return nil
	}
	return q.History(limit)
}

// SetAlwaysOn switches 24/7 mode. Enabling joins voiceChannelID and keeps the bot there.
func (m *Manager) SetAlwaysOn(ctx context.Context, guildID, textChannelID, voiceChannelID string, enabled bool) error {
	if enabled {
		if voiceChannelID == "" {
			return ErrNotInVoice
		}
		q := m.registry.GetOrCreate(guildID)
		if err := m.connect(ctx, q, textChannelID, voiceChannelID); err != nil {
			m.dropUnused(q)
			return err
		}
	}

	m.stateMgr.SetAlwaysOn(guildID, enabled, voiceChannelID)
	if err := m.settings.SetAlwaysOn(ctx, guildID, voiceChannelID, enabled); err != nil {
		return err
	}
	zlog.Info().Msgf("24/7 mode changed: guild=%s enabled=%t channel=%s", guildID, enabled, voiceChannelID)

	if !enabled {
		if q, ok := m.registry.Get(guildID); ok && !q.IsPlaying() && m.driver.Connected(guildID) {
			m.goIdle(guildID, state.IdleQueueEmpty)
		}
	}
	return nil
}

// AlwaysOn reports whether 24/7 mode is on and the voice channel it keeps.
func (m *Manager) AlwaysOn(guildID string) (bool, string) {
	return m.stateMgr.AlwaysOn(guildID)
}

// VoiceChannelChanged is called when members join or leave the bot's voice channel.
// humans is the number of non-bot members left in it.
func (m *Manager) VoiceChannelChanged(guildID, voiceChannelID string, humans int) {
	q, ok := m.registry.Get(guildID)
	if !ok || q.VoiceChannelID() != voiceChannelID || !m.driver.Connected(guildID) {
		return
	}
	if humans == 0 {
		m.goIdle(guildID, state.IdleChannelEmpty)
		return
	}
	if q.IsPlaying() && m.stateMgr.DisarmIdle(guildID) {
		zlog.Info().Msgf("idle timer cancelled: guild=%s", guildID)
	}
}

// VoiceDisconnected is called when the bot was removed from voice by someone else.
// voiceChannelID is the channel it left; events for a channel the guild no longer uses are ignored.
func (m *Manager) VoiceDisconnected(guildID, voiceChannelID string) {
	if !m.driver.Connected(guildID) {
		return
	}
	if q, ok := m.registry.Get(guildID); ok && voiceChannelID != "" && q.VoiceChannelID() != voiceChannelID {
		return
	}
	m.disconnect(guildID, "kicked")
}

// CleanupMode selects what Cleanup removes.
type CleanupMode int

const (
	CleanupOld   CleanupMode = iota // Files older than the configured age
	CleanupAll                      // Every file not in a queue
	CleanupForce                    // Retry every pending deletion now
)

// CleanupReport is the outcome of Cleanup.
type CleanupReport struct {
	Sweep  reclaim.SweepResult
	Forced reclaim.CleanupResult
}

// Cleanup removes downloaded files. olderThan applies to CleanupOld; zero uses the configured age.
func (m *Manager) Cleanup(mode CleanupMode, olderThan time.Duration) (*CleanupReport, error) {
	report := &CleanupReport{}
	var err error
	switch mode {
	case CleanupOld:
		if olderThan <= 0 {
			olderThan = m.config.Downloads.MaxAge()
		}
		report.Sweep, err = m.sweeper.SweepOlderThan(olderThan)
	case CleanupAll:
		report.Sweep, err = m.sweeper.DeleteAll()
	case CleanupForce:
		report.Forced = m.reclaimer.ForceCleanup()
	default:
		return nil, errors.Newf("unknown cleanup mode %d", mode)
	}
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("cleanup: mode=%d deleted=%d freed=%d forced=%d/%d",
		mode, report.Sweep.Deleted, report.Sweep.FreedBytes, report.Forced.Deleted, report.Forced.Attempted)
	return report, nil
}

// DownloadsInfo describes the download directory and background work.
type DownloadsInfo struct {
	Usage    reclaim.Usage
	Pending  reclaim.Status
	Prefetch prefetch.Status
}

// Downloads returns the download directory usage and background status.
func (m *Manager) Downloads() (*DownloadsInfo, error) {
	usage, err := m.sweeper.Info()
	if err != nil {
		return nil, err
	}
	return &DownloadsInfo{
		Usage:    usage,
		Pending:  m.reclaimer.Status(),
		Prefetch: m.prefetcher.Status(),
	}, nil
}

// lookup resolves a URL or searches for the best match.
func (m *Manager) lookup(ctx context.Context, query string) (*ytdlp.Metadata, error) {
	query = strings.TrimSpace(query)
	if isURL(query) {
		return m.catalog.Resolve(ctx, query)
	}
	results, err := m.catalog.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// checkChannel rejects requests from another voice channel while music is playing.
func (m *Manager) checkChannel(guildID, voiceChannelID string) error {
	q, ok := m.registry.Get(guildID)
	if !ok || !q.IsPlaying() || !m.driver.Connected(guildID) {
		return nil
	}
	if current := q.VoiceChannelID(); current != "" && current != voiceChannelID {
		return ErrDifferentVoiceChannel
	}
	return nil
}

// CheckListener reports whether a member in voiceChannelID may control the guild's playback.
// The member must be in the bot's voice channel while the bot is connected.
func (m *Manager) CheckListener(guildID, voiceChannelID string) error {
	q, ok := m.registry.Get(guildID)
	if !ok {
		return ErrNoQueue
	}
	if voiceChannelID == "" {
		return ErrNotInVoice
	}
	if m.driver.Connected(guildID) && q.VoiceChannelID() != "" && q.VoiceChannelID() != voiceChannelID {
		return ErrDifferentVoiceChannel
	}
	return nil
}

// connect makes sure the guild has a voice connection to voiceChannelID.
func (m *Manager) connect(ctx context.Context, q *queue.Queue, textChannelID, voiceChannelID string) error {
	guildID := q.GuildID()
	if textChannelID == "" {
		textChannelID = q.TextChannelID()
	}
	if m.driver.Connected(guildID) && q.VoiceChannelID() == voiceChannelID {
		q.SetChannels(textChannelID, voiceChannelID)
		m.stateMgr.SetActive(guildID)
		return nil
	}

	t, err := m.connector.Connect(ctx, guildID, voiceChannelID)
	if err != nil {
		return errors.Wrapf(err, "failed to join voice channel %s", voiceChannelID)
	}
	m.driver.Attach(guildID, t)
	q.SetChannels(textChannelID, voiceChannelID)
	m.stateMgr.SetActive(guildID)
	zlog.Info().Msgf("voice connected: guild=%s channel=%s", guildID, voiceChannelID)
	return nil
}

// dropUnused removes a queue that was created for a request that never connected.
func (m *Manager) dropUnused(q *queue.Queue) {
	if q.Len() == 0 && !m.driver.Connected(q.GuildID()) {
		m.registry.Remove(q.GuildID(), q)
	}
}

// play starts the driver, or the prefetcher when a song is already playing.
func (m *Manager) play(q *queue.Queue) (bool, error) {
	m.stateMgr.SetActive(q.GuildID())
	started, err := m.driver.Start(q)
	if err != nil {
		return false, err
	}
	if !started {
		m.prefetcher.Start(q)
	}
	return started, nil
}

// goIdle arms the idle disconnect unless the guild is in 24/7 mode.
func (m *Manager) goIdle(guildID string, reason state.IdleReason) {
	timeout := m.config.Playback.IdleTimeout()
	if timeout <= 0 {
		return
	}
	if m.stateMgr.ArmIdle(guildID, timeout, func() { m.disconnect(guildID, reason.String()) }) {
		zlog.Info().Msgf("idle timer armed: guild=%s reason=%s timeout=%s", guildID, reason, timeout)
	}
}

// disconnect tears the guild down and announces it.
func (m *Manager) disconnect(guildID, reason string) {
	var channelID string
	if q, ok := m.registry.Get(guildID); ok {
		channelID = q.TextChannelID()
	}
	m.driver.Teardown(guildID)
	m.stateMgr.SetDisconnected(guildID)
	zlog.Info().Msgf("voice disconnected: guild=%s reason=%s", guildID, reason)

	m.notification.Broadcast(&notification.Notification{
		Type:      notification.TypeDisconnected,
		GuildID:   guildID,
		ChannelID: channelID,
	})
}

// release schedules the file of a removed song for deletion unless another entry still uses it.
func (m *Manager) release(q *queue.Queue, s *song.Song) {
	path := s.FilePath()
	if path == "" || q.References(path) {
		return
	}
	m.reclaimer.ScheduleDelete(path)
}

// inUse reports whether any queue holds the file at path.
func (m *Manager) inUse(path string) bool {
	return lo.ContainsBy(m.registry.All(), func(q *queue.Queue) bool {
		return q.References(path)
	})
}

// restoreAlwaysOn rejoins the voice channels of guilds with 24/7 enabled.
func (m *Manager) restoreAlwaysOn(ctx context.Context) error {
	settings, err := m.settings.EnabledAlwaysOn(ctx)
	if err != nil {
		return err
	}
	for _, s := range settings {
		m.stateMgr.SetAlwaysOn(s.GuildID, true, s.ChannelID)
		q := m.registry.GetOrCreate(s.GuildID)
		if err := m.connect(ctx, q, "", s.ChannelID); err != nil {
			zlog.Error().Err(err).Msgf("failed to rejoin 24/7 channel: guild=%s channel=%s", s.GuildID, s.ChannelID)
			m.registry.Remove(s.GuildID, q)
			continue
		}
		zlog.Info().Msgf("rejoined 24/7 channel: guild=%s channel=%s", s.GuildID, s.ChannelID)
	}
	return nil
}

// playbackLoop forwards driver events to subscribers.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: %v", r)
			// Restart loop so events keep flowing
			zlog.Info().Msg("restarting playback loop")
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.playbackLoop()
			}()
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-m.driver.Events():
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	if event.Type != playback.EventDownloadProgress {
		zlog.Debug().Msgf("playback event: type=%s guild=%s", event.Type, event.GuildID)
	}

	n := &notification.Notification{
		GuildID: event.GuildID,
		Song:    event.Song,
		Err:     event.Err,
	}
	if q, ok := m.registry.Get(event.GuildID); ok {
		n.ChannelID = q.TextChannelID()
	}

	switch event.Type {
	case playback.EventNowPlaying:
		n.Type = notification.TypeNowPlaying
		n.Cached = event.Cached
	case playback.EventDownloadProgress:
		n.Type = notification.TypeProgress
		n.Progress = event.Percent
	case playback.EventPlaybackFailed:
		n.Type = notification.TypePlaybackFailed
	case playback.EventQueueEmpty:
		n.Type = notification.TypeQueueEmpty
	case playback.EventPlaybackStalled:
		n.Type = notification.TypeStalled
	default:
		// Track ends and pause changes are answered by the command that caused them
		return
	}
	m.notification.Broadcast(n)
}

func newSong(meta *ytdlp.Metadata, requester song.Requester) *song.Song {
	return &song.Song{
		ID:        meta.ID,
		Title:     meta.Title,
		URL:       meta.URL,
		Duration:  meta.Duration,
		Uploader:  meta.Uploader,
		Thumbnail: meta.Thumbnail,
		Requester: requester,
		AddedAt:   time.Now(),
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
