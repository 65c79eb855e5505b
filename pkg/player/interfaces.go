package player

import (
	"context"
	"errors"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// ErrVoiceJoin is returned by Play when the voice channel could not be
// joined. The text channel has already been told.
var ErrVoiceJoin = errors.New("failed to join voice channel")

// Outcomes recorded to the play history
const (
	OutcomeCompleted  = "completed"
	OutcomeError      = "error"
	OutcomeSkipped    = "skipped"
	OutcomeUnresolved = "unresolved"
)

// Engine streams a single song at a time
type Engine interface {
	Play(ctx context.Context, voice pipeline.VoiceClient, channel pipeline.TextChannel, song *common.Song, bitrate int) (<-chan pipeline.Event, error)
	Stop()
	Pause()
	SetVolume(v float64)
	Volume() float64
	IsPlaying() bool
}

// StreamResolver fills in the stream locator of a song
type StreamResolver interface {
	ResolveStream(ctx context.Context, song *common.Song) (*common.Song, error)
}

// VoiceConnector opens and releases voice connections
type VoiceConnector interface {
	Join(ctx context.Context, guildID, channelID string) (pipeline.VoiceClient, error)
	Leave(guildID string) error
}

// StatusChannel is the text channel commands were issued from. It shows a
// now playing message that is created once and edited in place.
type StatusChannel interface {
	pipeline.TextChannel
	SendStatus(song *common.Song, volume float64) (string, error)
	EditStatus(messageID string, song *common.Song, volume float64) error
	DeleteMessage(messageID string) error
}

// SettingsStore persists guild settings. GetSettings returns nil without
// an error when nothing is stored.
type SettingsStore interface {
	GetSettings(guildID string) (*common.GuildSettings, error)
	SaveSettings(settings *common.GuildSettings) error
}

// HistoryRecorder records finished songs
type HistoryRecorder interface {
	RecordPlay(guildID string, song *common.Song, outcome string) error
}

// PlayRequest carries where a guild's music should play
type PlayRequest struct {
	VoiceChannelID string
	Channel        StatusChannel
	Bitrate        int
}
