package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/osa030/jukebot/internal/domain/song"
)

const (
	colorInfo    = 0x3498db
	colorSuccess = 0x2ecc71
	colorWarning = 0xf1c40f
	colorError   = 0xe74c3c
)

func songEmbed(title string, s *song.Song, color int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**[%s](%s)**", escape(s.Title), s.URL),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Duration", Value: s.DurationString(), Inline: true},
		},
	}
	if s.Uploader != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Channel", Value: escape(s.Uploader), Inline: true})
	}
	if s.Requester.Name != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: escape(s.Requester.Name), Inline: true})
	}
	if s.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: s.Thumbnail}
	}
	return embed
}

func messageEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	}
}

func errorEmbed(description string) *discordgo.MessageEmbed {
	return messageEmbed("❌ Error", description, colorError)
}

// progressBar renders percent (0..100) as a ten-cell bar.
func progressBar(percent float64) string {
	filled := int(percent / 10)
	filled = max(0, min(filled, 10))
	return fmt.Sprintf("%s%s %.0f%%", strings.Repeat("█", filled), strings.Repeat("░", 10-filled), percent)
}

// formatBytes renders a size in B, KB, MB or GB.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}

// escape keeps user supplied text from being read as markdown.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer(
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	`~`, `\~`,
	`|`, `\|`,
	`[`, `\[`,
	`]`, `\]`,
)
