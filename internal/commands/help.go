package commands

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/discord"
)

// help lists the commands with their descriptions using an embed
func (m *Music) help(_ context.Context, _ Request) Response {
	lines := make([]string, 0, len(Definitions()))
	for _, def := range Definitions() {
		lines = append(lines, "• `/"+def.Name+"` - "+def.Description)
	}

	return embed(&discordgo.MessageEmbed{
		Title:       "Conch",
		Description: "Here are all the available commands for the bot:",
		Color:       discord.ColorPlaying,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Music Commands",
				Value:  strings.Join(lines, "\n"),
				Inline: false,
			},
			{
				Name: "💡 Tips",
				Value: strings.Join([]string{
					"• Join a voice channel **before** using music commands",
					"• `/play` takes YouTube links, playlists, audio file links or search keywords",
					"• Every command also works with a `!` prefix, e.g. `!play never gonna give you up`",
				}, "\n"),
				Inline: false,
			},
		},
	})
}
