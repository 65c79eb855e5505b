package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/discord"
	"github.com/latoulicious/Conch/pkg/pipeline"
	"github.com/latoulicious/Conch/pkg/player"
	"github.com/latoulicious/Conch/pkg/resolver"
)

// play queues a song or a whole playlist and starts playback when idle
func (m *Music) play(ctx context.Context, req Request) Response {
	query := req.Options.String("query")
	if query == "" {
		return text("❌ Please provide a YouTube URL or search query.")
	}

	start, err := ParseStart(req.Options.String("start"))
	if err != nil {
		return text("❌ " + err.Error())
	}

	playReq, err := m.playRequest(req)
	if err != nil {
		return voiceError(err)
	}

	p := m.players(req.GuildID)

	var reply string
	if m.resolver.IsPlaylist(query) {
		songs, err := m.resolver.Expand(ctx, query)
		if err != nil {
			m.logger.Warn("Failed to expand playlist", pipeline.String("query", query), pipeline.Error(err))
			return text("❌ Failed to load the playlist.")
		}
		if len(songs) == 0 {
			return text("📭 The playlist is empty.")
		}
		for _, song := range songs {
			song.RequestedBy = req.Username
		}
		p.Enqueue(songs...)
		reply = fmt.Sprintf("✅ Added **%d** songs to the queue", len(songs))
	} else {
		song, err := m.resolver.Resolve(ctx, query, start)
		if err != nil {
			m.logger.Warn("Failed to resolve song", pipeline.String("query", query), pipeline.Error(err))
			return text(resolutionMessage(err))
		}
		song.RequestedBy = req.Username
		position := p.Enqueue(song)
		reply = fmt.Sprintf("✅ Added **%s** to queue (Position: %d)", song.Name, position)
	}

	if err := p.Play(ctx, playReq); err != nil {
		if errors.Is(err, player.ErrVoiceJoin) {
			return text(reply + "\n❌ Failed to join your voice channel.")
		}
		m.logger.Error("Failed to start playback", pipeline.String("guild_id", req.GuildID), pipeline.Error(err))
		return text(reply + "\n❌ Failed to start playback.")
	}
	return text(reply)
}

func resolutionMessage(err error) string {
	switch {
	case errors.Is(err, resolver.ErrUnsupportedReference):
		return "❌ That link is not supported."
	case errors.Is(err, resolver.ErrMetadataUnavailable):
		return "❌ Failed to find that song. Please check the URL or search terms."
	default:
		return "❌ Failed to get audio stream. Please check the URL."
	}
}

func voiceError(err error) Response {
	if errors.Is(err, discord.ErrNotInVoice) {
		return text("❌ You must be in a voice channel to play music.")
	}
	return text("❌ Could not find your voice channel.")
}

// ParseStart reads a start offset given as seconds, mm:ss, hh:mm:ss or a
// Go duration like 1m30s. An empty string is zero.
func ParseStart(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("invalid start time %q", s)
		}
		return d, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid start time %q", s)
	}

	var total time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || (i > 0 && n >= 60) {
			return 0, fmt.Errorf("invalid start time %q", s)
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}

// resume plays the current song again after a pause
func (m *Music) resume(ctx context.Context, req Request) Response {
	p := m.players(req.GuildID)
	if p.CurrentSong() == nil {
		return text("📭 Nothing to resume.")
	}
	if p.IsPlaying() {
		return text("▶️ Already playing.")
	}

	playReq, err := m.playRequest(req)
	if err != nil {
		return voiceError(err)
	}
	if err := p.Play(ctx, playReq); err != nil {
		return text("❌ Failed to resume playback.")
	}
	return text("▶️ Resumed playback!")
}

func songTitle(song *common.Song) string {
	if song == nil {
		return "nothing"
	}
	return "**" + song.Name + "**"
}
