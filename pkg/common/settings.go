package common

import "time"

// DefaultVolume is the volume of a guild without stored settings
const DefaultVolume = 1.0

// GuildSettings are the per guild playback preferences that survive restarts
type GuildSettings struct {
	GuildID   string
	Volume    float64
	Mode      PlayMode
	UpdatedAt time.Time
}

// NewGuildSettings returns the defaults for a guild
func NewGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID: guildID,
		Volume:  DefaultVolume,
		Mode:    PlayModeQueue,
	}
}
