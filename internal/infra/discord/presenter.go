package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/jukebot/internal/app/notification"
)

// progressInterval is the minimum time between edits of a download progress message.
const progressInterval = 2 * time.Second

var errPresenterBusy = errors.New("presenter queue is full")

// messenger is the part of the Discord session the presenter uses.
type messenger interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// progressMessage is the message a guild's download progress is written to.
type progressMessage struct {
	channelID string
	messageID string
	limiter   *rate.Limiter
}

// Presenter posts playback notifications to each guild's text channel.
// It implements notification.Stream; messages are sent in order by a single worker.
type Presenter struct {
	messenger messenger
	pending   chan *notification.Notification

	mu       sync.Mutex
	progress map[string]*progressMessage // by guild ID
}

// NewPresenter creates a presenter.
func NewPresenter(m messenger) *Presenter {
	return &Presenter{
		messenger: m,
		pending:   make(chan *notification.Notification, 64),
		progress:  make(map[string]*progressMessage),
	}
}

// Send implements notification.Stream. It never blocks; progress updates are dropped when the worker lags.
func (p *Presenter) Send(n *notification.Notification) error {
	if n.ChannelID == "" {
		return nil
	}
	select {
	case p.pending <- n:
		return nil
	default:
		if n.Type == notification.TypeProgress {
			return nil
		}
		return errPresenterBusy
	}
}

// Run delivers notifications until ctx is cancelled.
func (p *Presenter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-p.pending:
			if err := p.present(n); err != nil {
				zlog.Warn().Err(err).Msgf("presenter: failed to post: guild=%s type=%s", n.GuildID, n.Type)
			}
		}
	}
}

func (p *Presenter) present(n *notification.Notification) error {
	switch n.Type {
	case notification.TypeProgress:
		return p.showProgress(n)
	case notification.TypeNowPlaying:
		embed := songEmbed("🎵 Now Playing", n.Song, colorSuccess)
		if n.Cached {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: "Played from cache"}
		}
		return p.replaceProgress(n, embed)
	case notification.TypePlaybackFailed:
		desc := "A song could not be played and was skipped."
		if n.Song != nil {
			desc = fmt.Sprintf("Could not play **%s**, skipping it.", escape(n.Song.Title))
		}
		if n.Err != nil {
			desc += fmt.Sprintf("\n```%s```", n.Err.Error())
		}
		return p.replaceProgress(n, messageEmbed("⚠️ Playback Failed", desc, colorWarning))
	case notification.TypeQueueEmpty:
		return p.post(n.ChannelID, messageEmbed("📭 Queue Finished", "Add more songs with `/play`.", colorInfo))
	case notification.TypeStalled:
		return p.post(n.ChannelID, messageEmbed("⛔ Playback Stopped", "Every song in the loop failed to play. Fix the queue or turn looping off.", colorError))
	case notification.TypeDisconnected:
		p.forgetProgress(n.GuildID)
		return p.post(n.ChannelID, messageEmbed("👋 Disconnected", "Left the voice channel.", colorInfo))
	default:
		return nil
	}
}

// showProgress posts the first progress update and edits it for later ones, at most once per progressInterval.
func (p *Presenter) showProgress(n *notification.Notification) error {
	p.mu.Lock()
	pm, ok := p.progress[n.GuildID]
	if ok && !pm.limiter.Allow() {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	embed := messageEmbed("⏬ Downloading", progressBar(n.Progress), colorInfo)
	if n.Song != nil {
		embed.Description = fmt.Sprintf("**%s**\n%s", escape(n.Song.Title), progressBar(n.Progress))
	}

	if ok {
		_, err := p.messenger.ChannelMessageEditEmbed(pm.channelID, pm.messageID, embed)
		return errors.Wrap(err, "failed to edit progress message")
	}

	msg, err := p.messenger.ChannelMessageSendEmbed(n.ChannelID, embed)
	if err != nil {
		return errors.Wrap(err, "failed to send progress message")
	}
	limiter := rate.NewLimiter(rate.Every(progressInterval), 1)
	limiter.Allow()

	p.mu.Lock()
	p.progress[n.GuildID] = &progressMessage{channelID: n.ChannelID, messageID: msg.ID, limiter: limiter}
	p.mu.Unlock()
	return nil
}

// replaceProgress turns the guild's progress message into embed, or posts embed when there is none.
func (p *Presenter) replaceProgress(n *notification.Notification, embed *discordgo.MessageEmbed) error {
	pm := p.forgetProgress(n.GuildID)
	if pm != nil {
		if _, err := p.messenger.ChannelMessageEditEmbed(pm.channelID, pm.messageID, embed); err == nil {
			return nil
		}
	}
	return p.post(n.ChannelID, embed)
}

func (p *Presenter) forgetProgress(guildID string) *progressMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	pm := p.progress[guildID]
	delete(p.progress, guildID)
	return pm
}

func (p *Presenter) post(channelID string, embed *discordgo.MessageEmbed) error {
	if _, err := p.messenger.ChannelMessageSendEmbed(channelID, embed); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}
