package player

import (
	"context"
	"sync"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// EngineFactory builds the engine of a new coordinator
type EngineFactory func(guildID string) Engine

// Manager owns one Coordinator per guild
type Manager struct {
	deps      Dependencies
	newEngine EngineFactory
	logger    pipeline.Logger

	mu      sync.Mutex
	players map[string]*Coordinator
}

// NewManager creates a manager whose coordinators stream through engines
// built by newEngine.
func NewManager(deps Dependencies, newEngine EngineFactory) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Manager{
		deps:      deps,
		newEngine: newEngine,
		logger:    logger.With(pipeline.String("component", "player_manager")),
		players:   make(map[string]*Coordinator),
	}
}

// PipelineEngines returns an EngineFactory building pipeline engines on a
// shared decoder.
func PipelineEngines(config *pipeline.PipelineConfig, decoder pipeline.Decoder, logger pipeline.Logger, collector pipeline.MetricsCollector) EngineFactory {
	return func(guildID string) Engine {
		var l pipeline.Logger
		if logger != nil {
			l = logger.With(pipeline.String("guild_id", guildID))
		}
		return pipeline.NewEngine(config, decoder, l, collector)
	}
}

// GetOrCreate returns the coordinator of a guild, creating it on first use
func (m *Manager) GetOrCreate(guildID string) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.players[guildID]; ok {
		return c
	}

	c := NewCoordinator(guildID, m.newEngine(guildID), m.deps)
	m.players[guildID] = c
	m.logger.Debug("Created player", pipeline.String("guild_id", guildID))
	return c
}

// Get returns the coordinator of a guild if one exists
func (m *Manager) Get(guildID string) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.players[guildID]
	return c, ok
}

func (m *Manager) snapshot() []*Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	players := make([]*Coordinator, 0, len(m.players))
	for _, c := range m.players {
		players = append(players, c)
	}
	return players
}

// ResumeAll asks every guild to continue playback after a gateway reconnect
func (m *Manager) ResumeAll(ctx context.Context) {
	for _, c := range m.snapshot() {
		if err := c.ResumeAfterReconnect(ctx); err != nil {
			m.logger.Warn("Failed to resume playback",
				pipeline.String("guild_id", c.GuildID()),
				pipeline.Error(err),
			)
		}
	}
}

// Shutdown stops every guild and leaves all voice channels
func (m *Manager) Shutdown() {
	players := m.snapshot()
	for _, c := range players {
		c.Close()
		if m.deps.Voice != nil {
			if err := m.deps.Voice.Leave(c.GuildID()); err != nil {
				m.logger.Debug("Failed to leave voice channel", pipeline.String("guild_id", c.GuildID()), pipeline.Error(err))
			}
		}
	}
	m.logger.Info("Players shut down", pipeline.Int("guilds", len(players)))
}
