package commands

import (
	"context"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/discord"
)

// volume shows or sets the volume as a 0-100 percentage
func (m *Music) volume(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)

	level, ok := req.Options.Int("level")
	if !ok {
		return text("🔊 Volume is " + discord.FormatVolume(p.Volume()))
	}
	if level < 0 || level > 100 {
		return text("❌ Volume must be between 0 and 100.")
	}

	p.SetVolume(float64(level) / 100)
	return text("🔊 Volume set to " + discord.FormatVolume(p.Volume()))
}

// loop switches between queue and playlist mode, or sets the named mode
func (m *Music) loop(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)

	mode := common.PlayModePlaylist
	if p.PlayMode() == common.PlayModePlaylist {
		mode = common.PlayModeQueue
	}
	if name := req.Options.String("mode"); name != "" {
		parsed, err := common.ParsePlayMode(name)
		if err != nil {
			return text("❌ Mode must be `queue` or `playlist`.")
		}
		mode = parsed
	}

	p.SetPlayMode(mode)
	if mode == common.PlayModePlaylist {
		return text("🔁 Playlist mode: finished songs stay in the queue and it loops.")
	}
	return text("➡️ Queue mode: finished songs are removed.")
}
