package commands

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/discord"
	"github.com/latoulicious/Conch/pkg/lyrics"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// LyricsSearcher looks up the lyrics of a song
type LyricsSearcher interface {
	Search(ctx context.Context, query string) (*lyrics.Result, error)
}

// titleNoise matches the bracketed decorations of video titles
var titleNoise = regexp.MustCompile(`\s*[\(\[【][^\)\]】]*[\)\]】]`)

// WithLyrics enables the lyrics command
func (m *Music) WithLyrics(searcher LyricsSearcher) *Music {
	m.lyrics = searcher
	return m
}

// findLyrics searches the query option, or the current song without the
// decorations video titles usually carry.
func (m *Music) findLyrics(ctx context.Context, req Request) Response {
	if m.lyrics == nil {
		return text("❌ Lyrics search is disabled.")
	}

	query := req.Options.String("query")
	if query == "" {
		current := m.players(req.GuildID).CurrentSong()
		if current == nil {
			return text("❌ Nothing is playing. Use `/lyrics` with a song name.")
		}
		query = SearchTitle(current.Name)
	}

	result, err := m.lyrics.Search(ctx, query)
	if errors.Is(err, lyrics.ErrNotFound) {
		return text("🔍 No lyrics found for **" + query + "**.")
	}
	if err != nil {
		m.logger.Error("Lyrics search failed", pipeline.String("query", query), pipeline.Error(err))
		return text("❌ Lyrics search failed. Please try again later.")
	}

	e := &discordgo.MessageEmbed{
		Title:       "🎤 " + result.Title,
		URL:         result.URL,
		Description: result.Lyrics,
		Color:       discord.ColorInfo,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if result.Artist != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: result.Artist}
	}
	return embed(e)
}

// SearchTitle strips "(Official Video)" style suffixes from a title
func SearchTitle(title string) string {
	cleaned := strings.TrimSpace(titleNoise.ReplaceAllString(title, ""))
	if cleaned == "" {
		return strings.TrimSpace(title)
	}
	return cleaned
}
