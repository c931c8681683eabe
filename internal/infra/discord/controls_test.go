package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

func buttons(t *testing.T, row discordgo.MessageComponent) []discordgo.Button {
	t.Helper()
	r, ok := row.(discordgo.ActionsRow)
	require.True(t, ok)
	out := make([]discordgo.Button, 0, len(r.Components))
	for _, c := range r.Components {
		b, ok := c.(discordgo.Button)
		require.True(t, ok)
		out = append(out, b)
	}
	return out
}

func TestVolumeBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{percent: 0, want: "⬜⬜⬜⬜⬜⬜⬜⬜⬜⬜⬜⬜ 0%"},
		{percent: 50, want: "🟩🟩🟩🟩🟩🟩⬜⬜⬜⬜⬜⬜ 50%"},
		{percent: 100, want: "🟩🟩🟩🟩🟩🟩🟩🟩🟩🟩🟩🟩 100%"},
		{percent: 5, want: "🟩⬜⬜⬜⬜⬜⬜⬜⬜⬜⬜⬜ 5%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, volumeBar(tt.percent))
	}
}

func TestControlComponents(t *testing.T) {
	current := &song.Song{Title: "Current", URL: "https://example.com/watch?v=a", Duration: 90}

	t.Run("playing", func(t *testing.T) {
		comps := controlComponents(&session.NowPlaying{Song: current, State: playback.StatePlaying, Volume: 0, Loop: queue.LoopSong})
		require.Len(t, comps, 2)

		first := buttons(t, comps[0])
		assert.Equal(t, []string{buttonPause, buttonSkip, buttonStop, buttonShuffle, buttonLoop},
			[]string{first[0].CustomID, first[1].CustomID, first[2].CustomID, first[3].CustomID, first[4].CustomID})
		assert.Equal(t, "⏸️ Pause", first[0].Label)
		assert.Equal(t, discordgo.DangerButton, first[2].Style)
		assert.Equal(t, "🔁 Loop: song", first[4].Label)

		second := buttons(t, comps[1])
		require.Len(t, second, 5)
		assert.True(t, second[0].Disabled)
		assert.False(t, second[1].Disabled)
		assert.Equal(t, discordgo.LinkButton, second[4].Style)
		assert.Equal(t, current.URL, second[4].URL)
		assert.Empty(t, second[4].CustomID)
	})

	t.Run("paused", func(t *testing.T) {
		comps := controlComponents(&session.NowPlaying{Song: &song.Song{Title: "No link"}, State: playback.StatePaused, Volume: 100})
		first := buttons(t, comps[0])
		assert.Equal(t, "▶️ Resume", first[0].Label)
		assert.Equal(t, buttonPause, first[0].CustomID)

		second := buttons(t, comps[1])
		require.Len(t, second, 4)
		assert.True(t, second[1].Disabled)
	})

	// Every button that is not a link is routed
	for _, row := range controlComponents(&session.NowPlaying{Song: current}) {
		for _, b := range buttons(t, row) {
			if b.Style != discordgo.LinkButton {
				assert.Contains(t, controlButtons, b.CustomID)
			}
		}
	}
}

func TestControlsEmbed(t *testing.T) {
	np := &session.NowPlaying{
		Song:   &song.Song{Title: "Current", Duration: 90, Requester: song.Requester{Name: "alice"}},
		State:  playback.StatePaused,
		Volume: 50,
		Loop:   queue.LoopQueue,
	}
	embed := controlsEmbed(np, &session.QueueView{Total: 3, TotalDuration: 300})

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "alice", fields["Requested by"])
	assert.Equal(t, volumeBar(50), fields["Volume"])
	assert.Equal(t, "queue", fields["Loop"])
	assert.Equal(t, "3 songs (5:00)", fields["Queue"])
	assert.Equal(t, "paused", fields["Status"])
}

func TestDebugEmbed(t *testing.T) {
	fieldsOf := func(embed *discordgo.MessageEmbed) map[string]string {
		out := map[string]string{}
		for _, f := range embed.Fields {
			out[f.Name] = f.Value
		}
		return out
	}

	t.Run("resolved", func(t *testing.T) {
		embed := debugEmbed(debugInfo{
			URL:            "https://example.com/watch?v=a",
			Available:      true,
			Version:        "2025.01.15",
			Metadata:       &ytdlp.Metadata{Title: "Song a", Duration: 125, Uploader: "Uploader", FilesizeApprox: 3 * 1024 * 1024},
			VoiceChannelID: "voice1",
			Guild:          &session.GuildStatus{Songs: 2, Playback: "playing", Presence: "active"},
		})
		fields := fieldsOf(embed)
		assert.Equal(t, colorSuccess, embed.Color)
		assert.Equal(t, "✅ Available (2025.01.15)", fields["yt-dlp"])
		assert.Equal(t, "Song a", fields["Title"])
		assert.Equal(t, "2:05", fields["Duration"])
		assert.Equal(t, "~3.00 MB", fields["Size"])
		assert.Equal(t, "<#voice1>", fields["Your voice channel"])
		assert.Equal(t, "2 songs, playing, active", fields["Queue"])
		assert.NotContains(t, fields, "Error")
	})

	t.Run("resolve failed", func(t *testing.T) {
		err := errors.WithDetail(errors.Mark(errors.New("resolve failed"), ytdlp.ErrResolution), "ERROR: Video unavailable")
		embed := debugEmbed(debugInfo{URL: "https://example.com/watch?v=x", Available: true, Err: err})
		fields := fieldsOf(embed)
		assert.Equal(t, colorError, embed.Color)
		assert.Equal(t, "```\nERROR: Video unavailable\n```", fields["Error"])
		assert.Equal(t, "Not in a voice channel", fields["Your voice channel"])
		assert.Equal(t, "No queue", fields["Queue"])
		assert.NotContains(t, fields, "Title")
	})

	t.Run("yt-dlp missing", func(t *testing.T) {
		embed := debugEmbed(debugInfo{URL: "https://example.com", Err: errYtdlpMissing})
		fields := fieldsOf(embed)
		assert.Equal(t, "❌ Not available", fields["yt-dlp"])
		assert.Contains(t, fields["Error"], errYtdlpMissing.Error())
	})
}

func TestCodeBlock_Truncates(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	block := codeBlock(string(long) + "tail")
	assert.LessOrEqual(t, len(block), maxFieldLen)
	assert.Contains(t, block, "tail\n```")
}

func TestBuildCommands(t *testing.T) {
	b := &Bot{}
	cmds := b.buildCommands()
	require.Len(t, cmds, len(commandOrder))
	for _, name := range commandOrder {
		cmd, ok := cmds[name]
		require.True(t, ok, name)
		assert.True(t, cmd.handler != nil || cmd.panel != nil, name)
	}
	assert.NotNil(t, cmds["controls"].panel)
	assert.True(t, cmds["debug"].admin)

	member := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{}}}
	_, err := cmds["debug"].handler(context.Background(), member)
	assert.ErrorIs(t, err, errAdminOnly)
}
