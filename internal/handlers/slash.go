package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/internal/commands"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// commandTimeout bounds resolution and voice joins of a single command
const commandTimeout = 2 * time.Minute

// SlashHandler answers slash command interactions
type SlashHandler struct {
	music  *commands.Music
	logger pipeline.Logger
}

// NewSlashHandler creates a handler running commands on music
func NewSlashHandler(music *commands.Music, logger pipeline.Logger) *SlashHandler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &SlashHandler{
		music:  music,
		logger: logger.With(pipeline.String("component", "slash")),
	}
}

// Handle is registered with discordgo's AddHandler
func (h *SlashHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// Ignore interactions from bots and direct messages
	if i.Member == nil || i.Member.User == nil || i.Member.User.Bot {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleApplicationCommand(s, i)
	default:
		h.logger.Debug("Ignoring interaction", pipeline.Int("type", int(i.Type)))
	}
}

func (h *SlashHandler) handleApplicationCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	// Acknowledge the interaction immediately
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.logger.Error("Error acknowledging interaction", pipeline.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	response := h.music.Handle(ctx, data.Name, commands.Request{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		UserID:    i.Member.User.ID,
		Username:  i.Member.User.Username,
		Options:   optionsFromInteraction(data.Options),
	})

	edit := &discordgo.WebhookEdit{}
	if response.Content != "" {
		edit.Content = &response.Content
	}
	if response.Embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{response.Embed}
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		h.logger.Error("Error sending interaction response",
			pipeline.String("command", data.Name),
			pipeline.Error(err),
		)
	}
}

func optionsFromInteraction(options []*discordgo.ApplicationCommandInteractionDataOption) commands.Options {
	out := make(commands.Options, len(options))
	for _, option := range options {
		switch option.Type {
		case discordgo.ApplicationCommandOptionString:
			out[option.Name] = option.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			out[option.Name] = option.IntValue()
		default:
			out[option.Name] = option.Value
		}
	}
	return out
}
