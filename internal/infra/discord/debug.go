package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

// maxFieldLen is Discord's limit on an embed field value.
const maxFieldLen = 1024

var errYtdlpMissing = errors.New("yt-dlp could not be run")

// Extractor is the part of the yt-dlp client that /debug reports on.
type Extractor interface {
	Available(ctx context.Context) bool
	Version(ctx context.Context) (string, error)
	Resolve(ctx context.Context, url string) (*ytdlp.Metadata, error)
}

type debugInfo struct {
	URL            string
	Available      bool
	Version        string
	Metadata       *ytdlp.Metadata
	Err            error
	VoiceChannelID string
	Guild          *session.GuildStatus
}

func (b *Bot) debug(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	info := debugInfo{
		URL:            options(i.ApplicationCommandData().Options).String("url"),
		Available:      b.extractor.Available(ctx),
		VoiceChannelID: b.voiceChannelOf(i.GuildID, interactionUser(i).ID),
	}
	if info.Available {
		info.Version, _ = b.extractor.Version(ctx)
		info.Metadata, info.Err = b.extractor.Resolve(ctx, info.URL)
	} else {
		info.Err = errYtdlpMissing
	}
	if gs, ok := lo.Find(b.manager.GetStatus().Guilds, func(g session.GuildStatus) bool { return g.GuildID == i.GuildID }); ok {
		info.Guild = &gs
	}
	return debugEmbed(info), nil
}

func debugEmbed(info debugInfo) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🔧 Debug",
		Description: fmt.Sprintf("Testing `%s`", info.URL),
		Color:       colorSuccess,
	}

	tool := "❌ Not available"
	if info.Available {
		tool = "✅ Available"
		if info.Version != "" {
			tool += " (" + info.Version + ")"
		}
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "yt-dlp", Value: tool})

	if info.Metadata != nil {
		m := info.Metadata
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Title", Value: escape(m.Title)},
			&discordgo.MessageEmbedField{Name: "Duration", Value: song.FormatDuration(m.Duration), Inline: true},
			&discordgo.MessageEmbedField{Name: "Uploader", Value: lo.CoalesceOrEmpty(escape(m.Uploader), "Unknown"), Inline: true},
		)
		if m.FilesizeApprox > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Size", Value: "~" + formatBytes(m.FilesizeApprox), Inline: true})
		}
	}
	if info.Err != nil {
		embed.Color = colorError
		detail := lo.CoalesceOrEmpty(ytdlp.Diagnostic(info.Err), info.Err.Error())
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Error", Value: codeBlock(detail)})
	}

	voice := "Not in a voice channel"
	if info.VoiceChannelID != "" {
		voice = fmt.Sprintf("<#%s>", info.VoiceChannelID)
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Your voice channel", Value: voice})

	queueInfo := "No queue"
	if g := info.Guild; g != nil {
		queueInfo = fmt.Sprintf("%d songs, %s, %s", g.Songs, g.Playback, g.Presence)
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Queue", Value: queueInfo})
	return embed
}

// codeBlock wraps the tail of s in a code block that fits in an embed field.
func codeBlock(s string) string {
	const fence = "```"
	limit := maxFieldLen - 2*len(fence) - 2
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return fence + "\n" + s + "\n" + fence
}
