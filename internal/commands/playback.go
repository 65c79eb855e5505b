package commands

import (
	"context"
	"fmt"
)

func (m *Music) stop(_ context.Context, req Request) Response {
	m.players(req.GuildID).Stop()
	return text("⏹️ Stopped playback and cleared the queue!")
}

func (m *Music) pause(_ context.Context, req Request) Response {
	p := m.players(req.GuildID)
	if !p.IsPlaying() {
		return text("🔇 Nothing is playing.")
	}
	p.Pause()
	return text("⏸️ Paused playback!")
}

func (m *Music) skip(ctx context.Context, req Request) Response {
	p := m.players(req.GuildID)
	current := p.CurrentSong()
	if current == nil {
		return text("📭 Nothing to skip.")
	}

	playReq, err := m.playRequest(req)
	if err != nil {
		return voiceError(err)
	}

	more, err := p.Skip(ctx, playReq)
	reply := fmt.Sprintf("⏭️ Skipped %s", songTitle(current))
	if err != nil {
		return text(reply + "\n❌ Failed to play the next song.")
	}
	if !more {
		return text(reply + "\n📭 The queue is empty.")
	}
	return text(reply)
}

// leave disconnects from voice and forgets the queue
func (m *Music) leave(_ context.Context, req Request) Response {
	m.players(req.GuildID).Leave()
	return text("👋 Left the voice channel.")
}
