package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/domain/song"
)

// Custom IDs of the control panel buttons.
const (
	buttonPause      = "music_pause"
	buttonSkip       = "music_skip"
	buttonStop       = "music_stop"
	buttonShuffle    = "music_shuffle"
	buttonLoop       = "music_loop"
	buttonVolumeDown = "music_volume_down"
	buttonVolumeUp   = "music_volume_up"
	buttonQueue      = "music_queue"
	buttonRefresh    = "music_refresh"
)

var controlButtons = []string{
	buttonPause, buttonSkip, buttonStop, buttonShuffle, buttonLoop,
	buttonVolumeDown, buttonVolumeUp, buttonQueue, buttonRefresh,
}

const (
	volumeStep     = 10
	volumeBarCells = 12
)

var errUnknownButton = errors.New("unknown button")

// panelHandler is a command whose reply carries message components.
type panelHandler func(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error)

func (b *Bot) controls(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	return b.controlPanel(i.GuildID)
}

func (b *Bot) controlPanel(guildID string) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	np, err := b.manager.NowPlaying(guildID)
	if err != nil {
		return nil, nil, err
	}
	view, err := b.manager.Queue(guildID, 0)
	if err != nil {
		return nil, nil, err
	}
	return controlsEmbed(np, view), controlComponents(np), nil
}

// controlsEmbed renders the control panel for the current song.
func controlsEmbed(np *session.NowPlaying, view *session.QueueView) *discordgo.MessageEmbed {
	embed := songEmbed("🎛️ Music Controls", np.Song, colorInfo)
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Volume", Value: volumeBar(np.Volume)},
		&discordgo.MessageEmbedField{Name: "Loop", Value: np.Loop.String(), Inline: true},
		&discordgo.MessageEmbedField{
			Name:   "Queue",
			Value:  fmt.Sprintf("%d songs (%s)", view.Total, song.FormatDuration(view.TotalDuration)),
			Inline: true,
		},
		&discordgo.MessageEmbedField{Name: "Status", Value: np.State.String(), Inline: true},
	)
	return embed
}

func controlComponents(np *session.NowPlaying) []discordgo.MessageComponent {
	pause := discordgo.Button{Label: "⏸️ Pause", Style: discordgo.PrimaryButton, CustomID: buttonPause}
	if np.State == playback.StatePaused {
		pause = discordgo.Button{Label: "▶️ Resume", Style: discordgo.SuccessButton, CustomID: buttonPause}
	}

	playbackRow := discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		pause,
		discordgo.Button{Label: "⏭️ Skip", Style: discordgo.SecondaryButton, CustomID: buttonSkip},
		discordgo.Button{Label: "⏹️ Stop", Style: discordgo.DangerButton, CustomID: buttonStop},
		discordgo.Button{Label: "🔀 Shuffle", Style: discordgo.SecondaryButton, CustomID: buttonShuffle},
		discordgo.Button{Label: "🔁 Loop: " + np.Loop.String(), Style: discordgo.SecondaryButton, CustomID: buttonLoop},
	}}

	queueRow := discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "🔉 -10", Style: discordgo.SecondaryButton, CustomID: buttonVolumeDown, Disabled: np.Volume <= 0},
		discordgo.Button{Label: "🔊 +10", Style: discordgo.SecondaryButton, CustomID: buttonVolumeUp, Disabled: np.Volume >= 100},
		discordgo.Button{Label: "📋 Queue", Style: discordgo.SecondaryButton, CustomID: buttonQueue},
		discordgo.Button{Label: "🔄 Refresh", Style: discordgo.SecondaryButton, CustomID: buttonRefresh},
	}}
	if np.Song.URL != "" {
		queueRow.Components = append(queueRow.Components, discordgo.Button{Label: "🔗 Open", Style: discordgo.LinkButton, URL: np.Song.URL})
	}

	return []discordgo.MessageComponent{playbackRow, queueRow}
}

// volumeBar renders a volume percentage as a row of squares.
func volumeBar(percent int) string {
	filled := max(0, min((percent*volumeBarCells+50)/100, volumeBarCells))
	return fmt.Sprintf("%s%s %d%%", strings.Repeat("🟩", filled), strings.Repeat("⬜", volumeBarCells-filled), percent)
}

func (b *Bot) onComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	id := i.MessageComponentData().CustomID
	if !lo.Contains(controlButtons, id) {
		zlog.Warn().Msgf("discord: unknown component: id=%s", id)
		return
	}

	// Refresh redraws the panel in place; every other button answers privately
	ack := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}
	if id == buttonRefresh {
		ack = &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	}
	if err := s.InteractionRespond(i.Interaction, ack); err != nil {
		zlog.Warn().Err(err).Msgf("discord: failed to acknowledge: button=%s guild=%s", id, i.GuildID)
		return
	}

	b.dispatcher.Dispatch(i.GuildID, func() {
		b.press(id, i)
	})
}

func (b *Bot) press(id string, i *discordgo.InteractionCreate) {
	zlog.Debug().Msgf("discord: button: id=%s guild=%s user=%s", id, i.GuildID, interactionUser(i).Username)

	if id == buttonRefresh {
		embed, components, err := b.controlPanel(i.GuildID)
		if err != nil {
			embed = errorEmbed(b.userMessage(err))
			components = []discordgo.MessageComponent{}
		}
		b.edit(i, id, embed, components)
		return
	}

	embed, err := b.pressButton(b.ctx, id, i)
	if err != nil {
		zlog.Warn().Err(err).Msgf("discord: button failed: id=%s guild=%s", id, i.GuildID)
		embed = errorEmbed(b.userMessage(err))
	}
	b.edit(i, id, embed, nil)
}

func (b *Bot) pressButton(ctx context.Context, id string, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	voice := b.voiceChannelOf(i.GuildID, interactionUser(i).ID)
	if err := b.manager.CheckListener(i.GuildID, voice); err != nil {
		return nil, err
	}

	switch id {
	case buttonPause:
		np, err := b.manager.NowPlaying(i.GuildID)
		if err != nil {
			return nil, err
		}
		if np.State == playback.StatePaused {
			return b.resume(ctx, i)
		}
		return b.pause(ctx, i)
	case buttonSkip:
		return b.skip(ctx, i)
	case buttonStop:
		return b.stop(ctx, i)
	case buttonShuffle:
		return b.shuffle(ctx, i)
	case buttonLoop:
		np, err := b.manager.NowPlaying(i.GuildID)
		if err != nil {
			return nil, err
		}
		mode, err := b.manager.SetLoop(i.GuildID, np.Loop.Next().String())
		if err != nil {
			return nil, err
		}
		return loopEmbed(mode), nil
	case buttonVolumeDown:
		return b.stepVolume(i.GuildID, -volumeStep)
	case buttonVolumeUp:
		return b.stepVolume(i.GuildID, volumeStep)
	case buttonQueue:
		view, err := b.manager.Queue(i.GuildID, 0)
		if err != nil {
			return nil, err
		}
		return queueEmbed(view, 1), nil
	default:
		return nil, errors.Wrap(errUnknownButton, id)
	}
}

func (b *Bot) stepVolume(guildID string, delta int) (*discordgo.MessageEmbed, error) {
	np, err := b.manager.NowPlaying(guildID)
	if err != nil {
		return nil, err
	}
	level := max(0, min(np.Volume+delta, 100))
	if err := b.manager.SetVolume(guildID, level); err != nil {
		return nil, err
	}
	return messageEmbed("🔊 Volume", volumeBar(level), colorInfo), nil
}

func loopEmbed(mode queue.LoopMode) *discordgo.MessageEmbed {
	desc := map[queue.LoopMode]string{
		queue.LoopOff:   "Looping is off.",
		queue.LoopSong:  "Repeating the current song.",
		queue.LoopQueue: "Repeating the whole queue.",
	}[mode]
	return messageEmbed("🔁 Loop", desc, colorInfo)
}
