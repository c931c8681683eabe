package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/app/queue"
	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/domain/song"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

const (
	queuePageSize   = 10
	historySize     = 10
	downloadsListed = 10
)

type commandHandler func(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error)

type command struct {
	def     *discordgo.ApplicationCommand
	handler commandHandler
	panel   panelHandler // Set instead of handler when the reply has buttons
	admin   bool
}

// commandOrder is the order commands are registered in.
var commandOrder = []string{
	"play", "playlist", "skip", "stop", "pause", "resume",
	"queue", "nowplaying", "remove", "move", "shuffle", "loop",
	"volume", "history", "clear", "controls", "247", "downloads",
	"cleanup", "debug",
}

var errAdminOnly = errors.New("this command requires Administrator permissions")

func (b *Bot) buildCommands() map[string]*command {
	adminPerm := int64(discordgo.PermissionAdministrator)
	dm := false
	minOne := float64(1)
	minZero := float64(0)

	cmds := []*command{
		{
			def: &discordgo.ApplicationCommand{
				Name:        "play",
				Description: "Play a song from a URL or search terms",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "query", Description: "URL or search terms", Required: true},
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: "next", Description: "Play after the current song"},
				},
			},
			handler: b.play,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "playlist",
				Description: "Add songs from a playlist",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Playlist URL", Required: true},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "limit", Description: "How many songs to add", MinValue: &minOne, MaxValue: 50},
				},
			},
			handler: b.playlist,
		},
		{def: &discordgo.ApplicationCommand{Name: "skip", Description: "Skip the current song"}, handler: b.skip},
		{def: &discordgo.ApplicationCommand{Name: "stop", Description: "Stop playback, clear the queue and leave"}, handler: b.stop},
		{def: &discordgo.ApplicationCommand{Name: "pause", Description: "Pause playback"}, handler: b.pause},
		{def: &discordgo.ApplicationCommand{Name: "resume", Description: "Resume playback"}, handler: b.resume},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "queue",
				Description: "Show the queue",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "page", Description: "Page number", MinValue: &minOne},
				},
			},
			handler: b.queue,
		},
		{def: &discordgo.ApplicationCommand{Name: "nowplaying", Description: "Show the current song"}, handler: b.nowPlaying},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "remove",
				Description: "Remove a song from the queue",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "position", Description: "Queue position", Required: true, MinValue: &minOne},
				},
			},
			handler: b.remove,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "move",
				Description: "Move a song to another position",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "from", Description: "Current position", Required: true, MinValue: &minOne},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "to", Description: "New position", Required: true, MinValue: &minOne},
				},
			},
			handler: b.move,
		},
		{def: &discordgo.ApplicationCommand{Name: "shuffle", Description: "Shuffle the upcoming songs"}, handler: b.shuffle},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "loop",
				Description: "Set the loop mode",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "mode",
						Description: "Loop mode",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "Off", Value: "off"},
							{Name: "Song", Value: "song"},
							{Name: "Queue", Value: "queue"},
						},
					},
				},
			},
			handler: b.loop,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "volume",
				Description: "Set the volume",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "level", Description: "Volume (0-100)", Required: true, MinValue: &minZero, MaxValue: 100},
				},
			},
			handler: b.volume,
		},
		{def: &discordgo.ApplicationCommand{Name: "history", Description: "Show recently played songs"}, handler: b.history},
		{def: &discordgo.ApplicationCommand{Name: "clear", Description: "Remove every upcoming song"}, handler: b.clear},
		{def: &discordgo.ApplicationCommand{Name: "controls", Description: "Show the music control panel"}, panel: b.controls},
		{
			def: &discordgo.ApplicationCommand{
				Name:                     "247",
				Description:              "Keep the bot in your voice channel",
				DefaultMemberPermissions: &adminPerm,
				DMPermission:             &dm,
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "on", Description: "Stay in your voice channel"},
					{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "off", Description: "Leave when idle"},
					{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show the 24/7 setting"},
				},
			},
			handler: b.alwaysOn,
			admin:   true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:                     "downloads",
				Description:              "Show downloaded files and background work",
				DefaultMemberPermissions: &adminPerm,
				DMPermission:             &dm,
			},
			handler: b.downloads,
			admin:   true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:                     "cleanup",
				Description:              "Manage downloaded audio files",
				DefaultMemberPermissions: &adminPerm,
				DMPermission:             &dm,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "old",
						Description: "Delete files older than a number of hours",
						Options: []*discordgo.ApplicationCommandOption{
							{Type: discordgo.ApplicationCommandOptionInteger, Name: "hours", Description: "Age in hours", MinValue: &minOne, MaxValue: 168},
						},
					},
					{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "all", Description: "Delete every file not in a queue"},
					{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "info", Description: "Show downloaded files"},
					{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "force", Description: "Retry stuck deletions now"},
				},
			},
			handler: b.cleanup,
			admin:   true,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:                     "debug",
				Description:              "Check yt-dlp against a URL",
				DefaultMemberPermissions: &adminPerm,
				DMPermission:             &dm,
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Video URL to test", Required: true},
				},
			},
			handler: b.debug,
			admin:   true,
		},
	}

	for _, c := range cmds {
		if c.admin {
			c.handler = requireAdmin(c.handler)
		}
	}
	return lo.KeyBy(cmds, func(c *command) string { return c.def.Name })
}

func requireAdmin(next commandHandler) commandHandler {
	return func(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
		if i.Member == nil || i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
			return nil, errAdminOnly
		}
		return next(ctx, i)
	}
}

func (b *Bot) playRequest(i *discordgo.InteractionCreate, query string) session.PlayRequest {
	user := interactionUser(i)
	return session.PlayRequest{
		GuildID:        i.GuildID,
		TextChannelID:  i.ChannelID,
		VoiceChannelID: b.voiceChannelOf(i.GuildID, user.ID),
		Requester:      song.Requester{ID: user.ID, Name: displayName(i)},
		Query:          query,
	}
}

func (b *Bot) play(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	opts := options(i.ApplicationCommandData().Options)
	req := b.playRequest(i, opts.String("query"))
	req.Next = opts.Bool("next")

	result, err := b.manager.Play(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Accepted {
		return messageEmbed("🚫 Not Added", result.Message, colorWarning), nil
	}

	embed := songEmbed("✅ Added to Queue", result.Song, colorSuccess)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Position",
		Value:  positionLabel(result.Position, req.Next),
		Inline: true,
	})
	return embed, nil
}

func positionLabel(position int, next bool) string {
	switch {
	case position == 0:
		return "Playing now"
	case next:
		return "Next"
	default:
		return fmt.Sprintf("#%d", position)
	}
}

func (b *Bot) playlist(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	opts := options(i.ApplicationCommandData().Options)
	result, err := b.manager.PlayPlaylist(ctx, b.playRequest(i, opts.String("url")), opts.Int("limit"))
	if err != nil {
		return nil, err
	}
	if len(result.Added) == 0 {
		return messageEmbed("🚫 Nothing Added", fmt.Sprintf("None of the playlist's songs could be added (%d rejected).", result.Rejected), colorWarning), nil
	}

	desc := fmt.Sprintf("Added **%d** songs (%s).", len(result.Added), song.FormatDuration(result.Duration))
	if result.Rejected > 0 {
		desc += fmt.Sprintf("\n%d songs were not added.", result.Rejected)
	}
	embed := messageEmbed("📃 Playlist Added", desc, colorSuccess)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "First song", Value: escape(result.Added[0].Title)},
	}
	return embed, nil
}

func (b *Bot) skip(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	skipped, err := b.manager.Skip(i.GuildID)
	if err != nil {
		return nil, err
	}
	return messageEmbed("⏭️ Skipped", fmt.Sprintf("Skipped **%s**.", escape(skipped.Title)), colorInfo), nil
}

func (b *Bot) stop(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	result, err := b.manager.Stop(i.GuildID)
	if err != nil {
		return nil, err
	}
	return messageEmbed("⏹️ Stopped", fmt.Sprintf("Cleared %d songs and left the voice channel.", result.Cleared), colorInfo), nil
}

func (b *Bot) pause(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	if err := b.manager.Pause(i.GuildID); err != nil {
		return nil, err
	}
	return messageEmbed("⏸️ Paused", "Use `/resume` to continue.", colorInfo), nil
}

func (b *Bot) resume(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	if err := b.manager.Resume(i.GuildID); err != nil {
		return nil, err
	}
	return messageEmbed("▶️ Resumed", "Playback continues.", colorInfo), nil
}

func (b *Bot) queue(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	view, err := b.manager.Queue(i.GuildID, 0)
	if err != nil {
		return nil, err
	}
	page := max(options(i.ApplicationCommandData().Options).Int("page"), 1)
	return queueEmbed(view, page), nil
}

// queueEmbed renders one page of the upcoming songs.
func queueEmbed(view *session.QueueView, page int) *discordgo.MessageEmbed {
	pages := max((len(view.Upcoming)+queuePageSize-1)/queuePageSize, 1)
	page = min(page, pages)
	start := (page - 1) * queuePageSize
	end := min(start+queuePageSize, len(view.Upcoming))

	var sb strings.Builder
	if view.Current != nil {
		fmt.Fprintf(&sb, "**Now playing**\n[%s](%s) `%s`\n\n", escape(view.Current.Title), view.Current.URL, view.Current.DurationString())
	}
	if len(view.Upcoming) == 0 {
		sb.WriteString("Nothing queued after this song.")
	} else {
		sb.WriteString("**Up next**\n")
		for n, s := range view.Upcoming[start:end] {
			fmt.Fprintf(&sb, "`%d.` [%s](%s) `%s` | %s\n", start+n+1, escape(s.Title), s.URL, s.DurationString(), escape(s.Requester.Name))
		}
	}

	return &discordgo.MessageEmbed{
		Title:       "🎶 Queue",
		Description: sb.String(),
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Songs", Value: fmt.Sprint(view.Total), Inline: true},
			{Name: "Total length", Value: song.FormatDuration(view.TotalDuration), Inline: true},
			{Name: "Loop", Value: view.Loop.String(), Inline: true},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", view.Volume), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d/%d", page, pages)},
	}
}

func (b *Bot) nowPlaying(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	np, err := b.manager.NowPlaying(i.GuildID)
	if err != nil {
		return nil, err
	}
	embed := songEmbed("🎵 Now Playing", np.Song, colorSuccess)
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "State", Value: np.State.String(), Inline: true},
		&discordgo.MessageEmbedField{Name: "Volume", Value: fmt.Sprintf("%d%%", np.Volume), Inline: true},
		&discordgo.MessageEmbedField{Name: "Loop", Value: np.Loop.String(), Inline: true},
	)
	if np.Next != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Up next (%d queued)", np.Pending),
			Value: escape(np.Next.Title),
		})
	}
	return embed, nil
}

func (b *Bot) remove(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	position := options(i.ApplicationCommandData().Options).Int("position")
	removed, err := b.manager.Remove(i.GuildID, position)
	if err != nil {
		return nil, err
	}
	return messageEmbed("🗑️ Removed", fmt.Sprintf("Removed **%s** from the queue.", escape(removed.Title)), colorInfo), nil
}

func (b *Bot) move(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	opts := options(i.ApplicationCommandData().Options)
	from, to := opts.Int("from"), opts.Int("to")
	moved, err := b.manager.Move(i.GuildID, from, to)
	if err != nil {
		return nil, err
	}
	return messageEmbed("↕️ Moved", fmt.Sprintf("Moved **%s** to position %d.", escape(moved.Title), to), colorInfo), nil
}

func (b *Bot) shuffle(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	shuffled, err := b.manager.Shuffle(i.GuildID)
	if err != nil {
		return nil, err
	}
	if !shuffled {
		return messageEmbed("🔀 Shuffle", "There are not enough songs to shuffle.", colorWarning), nil
	}
	return messageEmbed("🔀 Shuffled", "The upcoming songs were shuffled.", colorInfo), nil
}

func (b *Bot) loop(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	mode, err := b.manager.SetLoop(i.GuildID, options(i.ApplicationCommandData().Options).String("mode"))
	if err != nil {
		return nil, err
	}
	return loopEmbed(mode), nil
}

func (b *Bot) volume(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	level := options(i.ApplicationCommandData().Options).Int("level")
	if err := b.manager.SetVolume(i.GuildID, level); err != nil {
		return nil, err
	}
	return messageEmbed("🔊 Volume", fmt.Sprintf("Volume set to **%d%%**.", level), colorInfo), nil
}

func (b *Bot) history(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	played := b.manager.History(i.GuildID, historySize)
	if len(played) == 0 {
		return messageEmbed("📜 History", "Nothing has been played yet.", colorInfo), nil
	}
	lines := lo.Map(played, func(s *song.Song, n int) string {
		return fmt.Sprintf("`%d.` [%s](%s) `%s`", n+1, escape(s.Title), s.URL, s.DurationString())
	})
	return messageEmbed("📜 History", strings.Join(lines, "\n"), colorInfo), nil
}

func (b *Bot) clear(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	removed, err := b.manager.Clear(i.GuildID)
	if err != nil {
		return nil, err
	}
	return messageEmbed("🧹 Cleared", fmt.Sprintf("Removed %d upcoming songs.", removed), colorInfo), nil
}

func (b *Bot) alwaysOn(ctx context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	sub, _ := subcommand(i)
	switch sub {
	case "on":
		voice := b.voiceChannelOf(i.GuildID, interactionUser(i).ID)
		if err := b.manager.SetAlwaysOn(ctx, i.GuildID, i.ChannelID, voice, true); err != nil {
			return nil, err
		}
		return messageEmbed("🌙 24/7 On", fmt.Sprintf("Staying in <#%s> even when idle.", voice), colorSuccess), nil
	case "off":
		if err := b.manager.SetAlwaysOn(ctx, i.GuildID, i.ChannelID, "", false); err != nil {
			return nil, err
		}
		return messageEmbed("☀️ 24/7 Off", "The bot leaves after being idle.", colorInfo), nil
	default:
		enabled, channelID := b.manager.AlwaysOn(i.GuildID)
		if !enabled {
			return messageEmbed("24/7 Status", "24/7 mode is off.", colorInfo), nil
		}
		return messageEmbed("24/7 Status", fmt.Sprintf("24/7 mode is on in <#%s>.", channelID), colorInfo), nil
	}
}

func (b *Bot) downloads(_ context.Context, _ *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	info, err := b.manager.Downloads()
	if err != nil {
		return nil, err
	}
	return downloadsEmbed(info), nil
}

func downloadsEmbed(info *session.DownloadsInfo) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "💾 Downloads",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Files", Value: fmt.Sprint(len(info.Usage.Files)), Inline: true},
			{Name: "Total size", Value: formatBytes(info.Usage.TotalBytes), Inline: true},
			{Name: "Pending deletions", Value: fmt.Sprint(info.Pending.Pending), Inline: true},
			{Name: "Prefetching guilds", Value: fmt.Sprint(info.Prefetch.Active), Inline: true},
		},
	}
	if len(info.Usage.Files) == 0 {
		embed.Description = "No downloaded files."
		return embed
	}

	var sb strings.Builder
	for _, f := range lo.Slice(info.Usage.Files, 0, downloadsListed) {
		fmt.Fprintf(&sb, "`%s` %s, %s ago\n", f.Name, formatBytes(f.Size), time.Since(f.ModTime).Round(time.Minute))
	}
	if extra := len(info.Usage.Files) - downloadsListed; extra > 0 {
		fmt.Fprintf(&sb, "and %d more", extra)
	}
	embed.Description = sb.String()
	return embed
}

func (b *Bot) cleanup(_ context.Context, i *discordgo.InteractionCreate) (*discordgo.MessageEmbed, error) {
	sub, opts := subcommand(i)
	var (
		mode  session.CleanupMode
		age   time.Duration
		title string
	)
	switch sub {
	case "old":
		mode, title = session.CleanupOld, "🧹 Old Files Removed"
		age = time.Duration(opts.Int("hours")) * time.Hour
	case "all":
		mode, title = session.CleanupAll, "🧹 Files Removed"
	case "force":
		mode, title = session.CleanupForce, "🧹 Stuck Deletions Retried"
	default:
		info, err := b.manager.Downloads()
		if err != nil {
			return nil, err
		}
		return downloadsEmbed(info), nil
	}

	report, err := b.manager.Cleanup(mode, age)
	if err != nil {
		return nil, err
	}
	if mode == session.CleanupForce {
		return messageEmbed(title, fmt.Sprintf("Deleted %d of %d pending files.", report.Forced.Deleted, report.Forced.Attempted), colorSuccess), nil
	}
	desc := fmt.Sprintf("Deleted %d files and freed %s.", report.Sweep.Deleted, formatBytes(report.Sweep.FreedBytes))
	if report.Sweep.Skipped > 0 {
		desc += fmt.Sprintf("\nKept %d files still in a queue.", report.Sweep.Skipped)
	}
	return messageEmbed(title, desc, colorSuccess), nil
}

// userMessage turns an error into a message fit for the channel.
func (b *Bot) userMessage(err error) string {
	known := []error{
		errAdminOnly,
		session.ErrNotInVoice,
		session.ErrDifferentVoiceChannel,
		session.ErrNoQueue,
		session.ErrInvalidPosition,
		playback.ErrNothingPlaying,
		playback.ErrNoTransport,
		playback.ErrNotPlaying,
		playback.ErrNotPaused,
		queue.ErrSongNotFound,
		queue.ErrCannotRemoveCurrent,
		queue.ErrInvalidLoopMode,
		queue.ErrInvalidVolume,
		ytdlp.ErrNotFound,
	}
	if match, ok := lo.Find(known, func(target error) bool { return errors.Is(err, target) }); ok {
		return sentence(match.Error())
	}

	switch {
	case errors.Is(err, ytdlp.ErrResolution):
		return "Couldn't load that link. Check that it is a public video or playlist."
	case errors.Is(err, ytdlp.ErrSearch):
		return "The search failed. Try again in a moment."
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long. Try again in a moment."
	default:
		return b.config.Messages.DefaultError
	}
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// optionValues looks up command options by name.
type optionValues map[string]*discordgo.ApplicationCommandInteractionDataOption

func options(opts []*discordgo.ApplicationCommandInteractionDataOption) optionValues {
	return lo.KeyBy(opts, func(o *discordgo.ApplicationCommandInteractionDataOption) string { return o.Name })
}

func (o optionValues) String(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o optionValues) Int(name string) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return 0
}

func (o optionValues) Bool(name string) bool {
	if opt, ok := o[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// subcommand returns the invoked subcommand and its options.
func subcommand(i *discordgo.InteractionCreate) (string, optionValues) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 || data.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", optionValues{}
	}
	return data.Options[0].Name, options(data.Options[0].Options)
}
