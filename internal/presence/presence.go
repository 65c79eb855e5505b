package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

const (
	presenceDefault = "default"
	presenceMusic   = "music"
)

// DefaultInterval is how often the server statistics presence is refreshed
const DefaultInterval = 5 * time.Minute

// StatusUpdater is the part of a discordgo session that sets the bot status
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// PresenceManager manages the bot's presence. It implements
// discord.NowPlayingListener so now playing messages drive the music status.
type PresenceManager struct {
	session StatusUpdater
	state   *discordgo.State
	logger  pipeline.Logger

	mu      sync.RWMutex
	current string
	song    string
}

// NewPresenceManager creates a new presence manager; state supplies the
// guild statistics and may be nil.
func NewPresenceManager(session StatusUpdater, state *discordgo.State, logger pipeline.Logger) *PresenceManager {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &PresenceManager{
		session: session,
		state:   state,
		logger:  logger.With(pipeline.String("component", "presence")),
	}
}

// UpdateDefaultPresence shows how many servers and channels the bot is in
func (pm *PresenceManager) UpdateDefaultPresence() {
	guilds, channels := pm.counts()

	presence := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  strconv.Itoa(channels) + " channels",
				Type:  discordgo.ActivityTypeWatching,
				State: "in " + strconv.Itoa(guilds) + " servers",
			},
		},
	}

	if err := pm.session.UpdateStatusComplex(presence); err != nil {
		pm.logger.Warn("Failed to update bot presence", pipeline.Error(err))
	}

	pm.mu.Lock()
	pm.current = presenceDefault
	pm.song = ""
	pm.mu.Unlock()
}

func (pm *PresenceManager) counts() (guilds, channels int) {
	if pm.state == nil {
		return 0, 0
	}
	pm.state.RLock()
	defer pm.state.RUnlock()

	for _, guild := range pm.state.Guilds {
		if guild != nil {
			guilds++
			channels += len(guild.Channels)
		}
	}
	return guilds, channels
}

// UpdateMusicPresence shows songTitle as the listening activity
func (pm *PresenceManager) UpdateMusicPresence(songTitle string) {
	pm.mu.RLock()
	unchanged := pm.current == presenceMusic && pm.song == songTitle
	pm.mu.RUnlock()
	if unchanged {
		return
	}

	presence := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "to",
				Type:  discordgo.ActivityTypeListening,
				State: songTitle,
			},
		},
	}

	if err := pm.session.UpdateStatusComplex(presence); err != nil {
		pm.logger.Warn("Failed to update music presence", pipeline.Error(err))
	}

	pm.mu.Lock()
	pm.current = presenceMusic
	pm.song = songTitle
	pm.mu.Unlock()
}

// SongStarted is called whenever a now playing message is posted or edited
func (pm *PresenceManager) SongStarted(song *common.Song) {
	pm.UpdateMusicPresence(song.Name)
}

// SongStopped returns to the default presence
func (pm *PresenceManager) SongStopped() {
	pm.UpdateDefaultPresence()
}

// GetCurrentPresence returns the current presence type
func (pm *PresenceManager) GetCurrentPresence() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.current
}

// StartPeriodicUpdates refreshes the default presence every interval until
// ctx is done. Music presence is left alone.
func (pm *PresenceManager) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pm.GetCurrentPresence() != presenceMusic {
					pm.UpdateDefaultPresence()
				}
			}
		}
	}()
}
