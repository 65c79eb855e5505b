package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/database"
	"github.com/latoulicious/Conch/pkg/discord"
	"github.com/latoulicious/Conch/pkg/pipeline"
	"github.com/latoulicious/Conch/pkg/player"
)

// historyLimit is how many plays the history command shows
const historyLimit = 10

func (m *Music) nowPlaying(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)
	current := p.CurrentSong()
	if current == nil || !p.IsPlaying() {
		return embed(discord.NothingPlayingEmbed())
	}
	return embed(discord.SongEmbed(current, p.Volume()))
}

// recent lists the latest plays of the guild
func (m *Music) recent(_ context.Context, req Request) Response {
	if m.history == nil {
		return text("❌ Play history is disabled.")
	}

	entries, err := m.history.Recent(req.GuildID, historyLimit)
	if err != nil {
		m.logger.Error("Failed to load play history", pipeline.String("guild_id", req.GuildID), pipeline.Error(err))
		return text("❌ Failed to load play history.")
	}
	if len(entries) == 0 {
		return text("📭 Nothing has been played yet.")
	}
	return embed(historyEmbed(entries))
}

var outcomeEmoji = map[string]string{
	player.OutcomeCompleted:  "✅",
	player.OutcomeSkipped:    "⏭️",
	player.OutcomeError:      "❌",
	player.OutcomeUnresolved: "⚠️",
}

func historyEmbed(entries []*database.HistoryEntry) *discordgo.MessageEmbed {
	var b strings.Builder
	for i, entry := range entries {
		emoji := outcomeEmoji[entry.Outcome]
		if emoji == "" {
			emoji = "•"
		}
		fmt.Fprintf(&b, "`%d.` %s %s <t:%d:R>", i+1, emoji, entry.Name, entry.PlayedAt.Unix())
		if entry.RequestedBy != "" {
			fmt.Fprintf(&b, " (Requested by: %s)", entry.RequestedBy)
		}
		b.WriteString("\n")
	}

	return &discordgo.MessageEmbed{
		Title:       "📜 Recently Played",
		Description: b.String(),
		Color:       discord.ColorInfo,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}
