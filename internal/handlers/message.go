package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/internal/commands"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

const prefix = "!"

// aliases maps short prefix commands to their full names
var aliases = map[string]string{
	"p":  "play",
	"np": "nowplaying",
	"q":  "queue",
	"h":  "help",
	"s":  "skip",
	"l":  "lyrics",
}

// MessageHandler runs the music commands for messages starting with "!"
type MessageHandler struct {
	music  *commands.Music
	logger pipeline.Logger
}

// NewMessageHandler creates a prefix command handler
func NewMessageHandler(music *commands.Music, logger pipeline.Logger) *MessageHandler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &MessageHandler{
		music:  music,
		logger: logger.With(pipeline.String("component", "message")),
	}
}

// Handle is registered with discordgo's AddHandler
func (h *MessageHandler) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore all messages created by bots, the bot itself included
	if m.Author == nil || m.Author.Bot {
		return
	}

	name, req, ok := ParseMessage(m.Content)
	if !ok {
		return
	}
	req.GuildID = m.GuildID
	req.ChannelID = m.ChannelID
	req.UserID = m.Author.ID
	req.Username = m.Author.Username

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	response := h.music.Handle(ctx, name, req)

	var err error
	if response.Embed != nil {
		_, err = s.ChannelMessageSendEmbed(m.ChannelID, response.Embed)
	}
	if err == nil && response.Content != "" {
		_, err = s.ChannelMessageSend(m.ChannelID, response.Content)
	}
	if err != nil {
		h.logger.Error("Error sending command response", pipeline.String("command", name), pipeline.Error(err))
	}
}

// ParseMessage turns "!play some song" into a command name and its options
func ParseMessage(content string) (string, commands.Request, bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", commands.Request{}, false
	}

	args := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(args) == 0 {
		return "", commands.Request{}, false
	}

	name := strings.ToLower(args[0])
	if full, ok := aliases[name]; ok {
		name = full
	}
	args = args[1:]

	options := commands.Options{}
	switch name {
	case "play":
		// a trailing "@1:30" sets the start position
		if n := len(args); n > 1 && strings.HasPrefix(args[n-1], "@") {
			options["start"] = strings.TrimPrefix(args[n-1], "@")
			args = args[:n-1]
		}
		options["query"] = strings.Join(args, " ")
	case "remove":
		if len(args) > 0 {
			if n, err := strconv.ParseInt(args[0], 10, 64); err == nil {
				options["position"] = n
			}
		}
	case "volume":
		if len(args) > 0 {
			if n, err := strconv.ParseInt(strings.TrimSuffix(args[0], "%"), 10, 64); err == nil {
				options["level"] = n
			}
		}
	case "lyrics":
		if len(args) > 0 {
			options["query"] = strings.Join(args, " ")
		}
	case "loop":
		if len(args) > 0 {
			options["mode"] = args[0]
		}
	}

	return name, commands.Request{Options: options}, true
}
