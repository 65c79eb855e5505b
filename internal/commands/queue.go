package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/discord"
)

// queuePageSize is how many songs the queue embed lists
const queuePageSize = 10

func (m *Music) queue(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)
	songs := p.Queue()
	if len(songs) == 0 {
		return text("📭 Queue is empty.")
	}
	return embed(queueEmbed(songs, p.Cursor(), p.PlayMode(), p.Volume()))
}

func queueEmbed(songs []*common.Song, cursor int, mode common.PlayMode, volume float64) *discordgo.MessageEmbed {
	// keep the current song on the page
	first := 0
	if cursor >= queuePageSize {
		first = cursor - queuePageSize/2
	}
	last := min(len(songs), first+queuePageSize)

	var b strings.Builder
	for i := first; i < last; i++ {
		marker := "  "
		if i == cursor {
			marker = "▶️"
		}
		fmt.Fprintf(&b, "%s `%d.` %s", marker, i+1, songs[i].Name)
		if songs[i].RequestedBy != "" {
			fmt.Fprintf(&b, " (Requested by: %s)", songs[i].RequestedBy)
		}
		b.WriteString("\n")
	}
	if rest := len(songs) - last; rest > 0 {
		fmt.Fprintf(&b, "…and %d more", rest)
	}

	return &discordgo.MessageEmbed{
		Title:       "🎵 Music Queue",
		Description: b.String(),
		Color:       discord.ColorInfo,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Songs", Value: fmt.Sprintf("%d", len(songs)), Inline: true},
			{Name: "Mode", Value: mode.String(), Inline: true},
			{Name: "Volume", Value: discord.FormatVolume(volume), Inline: true},
		},
	}
}

// remove takes a 1-based position like the queue embed shows
func (m *Music) remove(_ context.Context, req Request) Response {
	position, ok := req.Options.Int("position")
	if !ok || position < 1 {
		return text("❌ Invalid position. Use `/queue` to see queue positions.")
	}

	song, err := m.players(req.GuildID).RemoveAt(int(position - 1))
	if err != nil {
		return text("❌ Invalid position. Use `/queue` to see queue positions.")
	}
	return text(fmt.Sprintf("✅ Removed %s from the queue.", songTitle(song)))
}

func (m *Music) clear(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)
	if len(p.Queue()) == 0 {
		return text("📭 The queue is already empty.")
	}
	p.ClearQueue()
	return text("✅ Queue cleared.")
}

func (m *Music) shuffle(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)
	if len(p.Queue()) < 2 {
		return text("📭 Need at least 2 songs to shuffle the queue.")
	}
	p.ShuffleQueue()
	return text("🔀 Queue shuffled!")
}
