// Package discord connects the session manager to Discord: slash commands in,
// voice audio and channel messages out.
package discord

import (
	"context"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/infra/config"
)

// NewSession creates a Discord session with the intents the bot needs.
// Events are delivered in order so commands for a guild apply in the order they were sent.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	dg.SyncEvents = true
	return dg, nil
}

// Bot handles Discord events for the session manager.
type Bot struct {
	session   *discordgo.Session
	manager   *session.Manager
	config    *config.Config
	presenter *Presenter
	extractor Extractor
	commands  map[string]*command

	dispatcher *dispatcher
	handlers   []func()
	subID      string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBot creates a bot. The extractor backs the /debug command.
func NewBot(dg *discordgo.Session, cfg *config.Config, manager *session.Manager, extractor Extractor) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session:    dg,
		manager:    manager,
		config:     cfg,
		presenter:  NewPresenter(dg),
		extractor:  extractor,
		dispatcher: newDispatcher(),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.commands = b.buildCommands()
	return b
}

// Open connects to the gateway, registers the slash commands and starts posting notifications.
func (b *Bot) Open() error {
	b.handlers = append(b.handlers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onInteractionCreate),
		b.session.AddHandler(b.onVoiceStateUpdate),
	)

	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}

	if err := b.registerCommands(); err != nil {
		_ = b.session.Close()
		return err
	}

	b.subID = b.manager.GetNotificationManager().Subscribe(b.presenter)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.presenter.Run(b.ctx)
	}()
	return nil
}

// Close stops event handling and closes the gateway connection.
func (b *Bot) Close() error {
	for _, remove := range b.handlers {
		remove()
	}
	b.handlers = nil
	if b.subID != "" {
		b.manager.GetNotificationManager().Unsubscribe(b.subID)
	}
	b.cancel()
	b.dispatcher.Close()
	b.wg.Wait()

	if err := b.session.Close(); err != nil {
		return errors.Wrap(err, "failed to close discord session")
	}
	return nil
}

func (b *Bot) registerCommands() error {
	defs := make([]*discordgo.ApplicationCommand, 0, len(b.commands))
	for _, name := range commandOrder {
		defs = append(defs, b.commands[name].def)
	}
	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.config.Discord.GuildID, defs)
	if err != nil {
		return errors.Wrap(err, "failed to register slash commands")
	}
	scope := "global"
	if b.config.Discord.GuildID != "" {
		scope = "guild " + b.config.Discord.GuildID
	}
	zlog.Info().Msgf("discord: registered %d commands: scope=%s", len(registered), scope)
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Msgf("discord: logged in: user=%s guilds=%d", r.User.Username, len(r.Guilds))
	if err := s.UpdateGameStatus(0, b.config.Discord.Status); err != nil {
		zlog.Warn().Err(err).Msg("discord: failed to update status")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.onCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.onComponent(s, i)
	}
}

func (b *Bot) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		b.respondNow(i, errorEmbed("Commands only work in a server."))
		return
	}
	name := i.ApplicationCommandData().Name
	cmd, ok := b.commands[name]
	if !ok {
		zlog.Warn().Msgf("discord: unknown command: name=%s", name)
		return
	}

	// Acknowledge within Discord's deadline; the reply is filled in by the guild's worker
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		zlog.Warn().Err(err).Msgf("discord: failed to acknowledge: command=%s guild=%s", name, i.GuildID)
		return
	}

	b.dispatcher.Dispatch(i.GuildID, func() {
		b.run(cmd, i)
	})
}

func (b *Bot) run(cmd *command, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	zlog.Debug().Msgf("discord: command: name=%s guild=%s user=%s", cmd.def.Name, i.GuildID, user.Username)

	var (
		embed      *discordgo.MessageEmbed
		components []discordgo.MessageComponent
		err        error
	)
	if cmd.panel != nil {
		embed, components, err = cmd.panel(b.ctx, i)
	} else {
		embed, err = cmd.handler(b.ctx, i)
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("discord: command failed: name=%s guild=%s", cmd.def.Name, i.GuildID)
		embed, components = errorEmbed(b.userMessage(err)), nil
	}
	b.edit(i, cmd.def.Name, embed, components)
}

// edit fills in a deferred response. Nil components leave the message's components as they are.
func (b *Bot) edit(i *discordgo.InteractionCreate, name string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	embeds := []*discordgo.MessageEmbed{embed}
	reply := &discordgo.WebhookEdit{Embeds: &embeds}
	if components != nil {
		reply.Components = &components
	}
	if _, err := b.session.InteractionResponseEdit(i.Interaction, reply); err != nil {
		zlog.Warn().Err(err).Msgf("discord: failed to reply: name=%s guild=%s", name, i.GuildID)
	}
}

func (b *Bot) respondNow(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("discord: failed to respond")
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	botID := s.State.User.ID
	if v.UserID == botID {
		if v.ChannelID == "" {
			var left string
			if v.BeforeUpdate != nil {
				left = v.BeforeUpdate.ChannelID
			}
			b.dispatcher.Dispatch(v.GuildID, func() {
				b.manager.VoiceDisconnected(v.GuildID, left)
			})
		}
		return
	}

	channelID, humans, ok := b.channelMembers(v.GuildID, botID)
	if !ok {
		return
	}
	b.dispatcher.Dispatch(v.GuildID, func() {
		b.manager.VoiceChannelChanged(v.GuildID, channelID, humans)
	})
}

// channelMembers returns the bot's voice channel in a guild and the number of non-bot members in it.
func (b *Bot) channelMembers(guildID, botID string) (string, int, bool) {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return "", 0, false
	}
	b.session.State.RLock()
	states := slices.Clone(guild.VoiceStates)
	b.session.State.RUnlock()

	var channelID string
	for _, vs := range states {
		if vs.UserID == botID {
			channelID = vs.ChannelID
			break
		}
	}
	if channelID == "" {
		return "", 0, false
	}

	humans := 0
	for _, vs := range states {
		if vs.ChannelID == channelID && vs.UserID != botID && !b.isBot(guildID, vs) {
			humans++
		}
	}
	return channelID, humans, true
}

func (b *Bot) isBot(guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	m, err := b.session.State.Member(guildID, vs.UserID)
	if err != nil || m.User == nil {
		return false
	}
	return m.User.Bot
}

// voiceChannelOf returns the voice channel the user is in, or "".
func (b *Bot) voiceChannelOf(guildID, userID string) string {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			if i.Member.User.GlobalName != "" {
				return i.Member.User.GlobalName
			}
			return i.Member.User.Username
		}
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}
