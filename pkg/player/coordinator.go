// Package player owns the per guild queue and drives the streaming engine
// through it. A Coordinator serializes every command of its guild; engine
// events are matched to the play attempt that produced them so late events
// of a stopped or skipped song are ignored.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// Dependencies are the collaborators shared by all coordinators
type Dependencies struct {
	Config   *pipeline.PipelineConfig
	Resolver StreamResolver
	Voice    VoiceConnector
	Settings SettingsStore
	History  HistoryRecorder
	Logger   pipeline.Logger
	Metrics  pipeline.MetricsCollector
}

// Coordinator is the music player of one guild
type Coordinator struct {
	guildID  string
	engine   Engine
	resolver StreamResolver
	voice    VoiceConnector
	settings SettingsStore
	history  HistoryRecorder
	logger   pipeline.Logger
	metrics  *pipeline.ScopedMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	queue       *common.Queue
	status      *statusMessage
	lastSong    *common.Song
	lastRequest *PlayRequest
	attempt     string

	resolveMu     sync.Mutex
	resolveCtx    context.Context
	resolveCancel context.CancelFunc
}

// NewCoordinator creates the player of a guild and applies its stored
// settings.
func NewCoordinator(guildID string, engine Engine, deps Dependencies) *Coordinator {
	config := deps.Config
	if config == nil {
		config = pipeline.DefaultPipelineConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger = logger.With(pipeline.String("component", "player"), pipeline.String("guild_id", guildID))

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		guildID:  guildID,
		engine:   engine,
		resolver: deps.Resolver,
		voice:    deps.Voice,
		settings: deps.Settings,
		history:  deps.History,
		logger:   logger,
		metrics:  pipeline.NewScopedMetrics(deps.Metrics, map[string]string{"guild_id": guildID}),
		ctx:      ctx,
		cancel:   cancel,
		queue:    common.NewQueue(guildID),
		status:   newStatusMessage(config.Status.EditInterval, config.Status.EditBurst, logger),
	}
	c.loadSettings()
	return c
}

// GuildID returns the guild this coordinator plays for
func (c *Coordinator) GuildID() string {
	return c.guildID
}

func (c *Coordinator) loadSettings() {
	if c.settings == nil {
		return
	}
	settings, err := c.settings.GetSettings(c.guildID)
	if err != nil {
		c.logger.Warn("Failed to load guild settings", pipeline.Error(err))
		return
	}
	if settings == nil {
		return
	}
	c.engine.SetVolume(settings.Volume)
	c.queue.SetMode(settings.Mode)
}

// persistLocked must be called with c.mu held
func (c *Coordinator) persistLocked() {
	if c.settings == nil {
		return
	}
	settings := &common.GuildSettings{
		GuildID: c.guildID,
		Volume:  c.engine.Volume(),
		Mode:    c.queue.Mode(),
	}
	if err := c.settings.SaveSettings(settings); err != nil {
		c.logger.Warn("Failed to save guild settings", pipeline.Error(err))
	}
}

// resolutionContext returns the context stream resolution runs under. A new
// one is created once the previous one was cancelled.
func (c *Coordinator) resolutionContext() context.Context {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()

	if c.resolveCtx == nil || c.resolveCtx.Err() != nil {
		c.resolveCtx, c.resolveCancel = context.WithCancel(c.ctx)
	}
	return c.resolveCtx
}

func (c *Coordinator) cancelResolution() {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()

	if c.resolveCancel != nil {
		c.resolveCancel()
	}
}

// Play joins the requested voice channel and starts the current song. It
// does nothing without a current song or while a song is streaming.
func (c *Coordinator) Play(ctx context.Context, req PlayRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playLocked(ctx, req)
}

func (c *Coordinator) playLocked(ctx context.Context, req PlayRequest) error {
	if !c.queue.HasCurrent() || c.engine.IsPlaying() {
		return nil
	}

	voice, err := c.voice.Join(ctx, c.guildID, req.VoiceChannelID)
	if err != nil {
		c.logger.Error("Failed to join voice channel",
			pipeline.String("channel_id", req.VoiceChannelID),
			pipeline.Error(err),
		)
		c.notify(req.Channel, "Failed to join voice channel.")
		return fmt.Errorf("%w: %v", ErrVoiceJoin, err)
	}

	c.lastRequest = &req
	return c.startLocked(voice, req)
}

// startLocked resolves and streams the current song. Songs that cannot be
// resolved are dropped and the next one is tried.
func (c *Coordinator) startLocked(voice pipeline.VoiceClient, req PlayRequest) error {
	rctx := c.resolutionContext()
	failures := 0

	for {
		song := c.queue.Current()
		if song == nil {
			c.releaseLocked()
			return nil
		}

		resolved, err := c.resolver.ResolveStream(rctx, song)
		if err != nil {
			if rctx.Err() != nil {
				c.logger.Debug("Stream resolution cancelled", pipeline.String("song", song.Name))
				return rctx.Err()
			}
			c.logger.Warn("Failed to resolve stream, removing song",
				pipeline.String("song", song.String()),
				pipeline.Error(err),
			)
			c.metrics.Counter("player.resolution.failures", 1, nil)
			c.record(song, OutcomeUnresolved)
			c.queue.RemoveCurrent()
			continue
		}
		if err := c.queue.ReplaceCurrent(resolved); err != nil {
			return err
		}

		events, err := c.engine.Play(c.ctx, voice, req.Channel, resolved, req.Bitrate)
		if err != nil {
			c.logger.Error("Failed to start song", pipeline.String("song", resolved.Name), pipeline.Error(err))
			c.record(resolved, OutcomeError)
			c.lastSong = resolved
			c.queue.Advance()

			failures++
			if c.queue.Mode() == common.PlayModePlaylist && failures >= c.queue.Len() {
				c.releaseLocked()
				return err
			}
			continue
		}
		if events == nil {
			c.logger.Warn("Voice connection lost before playback started", pipeline.String("song", resolved.Name))
			c.status.clear()
			c.notify(req.Channel, "Voice connection lost.")
			return nil
		}

		attempt := uuid.NewString()
		c.attempt = attempt
		c.status.show(req.Channel, resolved, c.engine.Volume(), true)
		c.metrics.Counter("player.songs.started", 1, nil)

		go c.watch(attempt, events)
		return nil
	}
}

// watch waits for the terminal event of one play attempt
func (c *Coordinator) watch(attempt string, events <-chan pipeline.Event) {
	event, ok := <-events
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != attempt {
		c.logger.Debug("Dropping event of a superseded play attempt", pipeline.String("attempt", attempt))
		return
	}
	c.attempt = ""
	c.finishLocked(event)
}

func (c *Coordinator) finishLocked(event pipeline.Event) {
	outcome := OutcomeCompleted
	if event.Kind == pipeline.EventError {
		outcome = OutcomeError
		c.logger.Error("Song ended with an error",
			pipeline.String("song", event.Song.String()),
			pipeline.Error(event.Err),
		)
	}
	c.record(event.Song, outcome)
	c.metrics.Counter("player.songs.finished", 1, map[string]string{"outcome": outcome})

	if event.Song != nil && event.Song.Time != nil {
		event.Song.Time.ResetStart()
	}
	c.lastSong = event.Song
	c.queue.Advance()

	if !c.queue.HasCurrent() {
		c.releaseLocked()
		return
	}

	req := PlayRequest{Bitrate: event.Bitrate}
	if c.lastRequest != nil {
		req = *c.lastRequest
		req.Bitrate = event.Bitrate
	}
	if err := c.startLocked(event.Voice, req); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Failed to play next song", pipeline.Error(err))
	}
}

// releaseLocked removes the status message and leaves voice once nothing is left to play
func (c *Coordinator) releaseLocked() {
	c.status.clear()
	if err := c.voice.Leave(c.guildID); err != nil {
		c.logger.Debug("Failed to leave voice channel", pipeline.Error(err))
	}
}

func (c *Coordinator) record(song *common.Song, outcome string) {
	if c.history == nil || song == nil {
		return
	}
	if err := c.history.RecordPlay(c.guildID, song, outcome); err != nil {
		c.logger.Warn("Failed to record play history", pipeline.Error(err))
	}
}

func (c *Coordinator) notify(channel pipeline.TextChannel, text string) {
	if channel == nil {
		return
	}
	if err := channel.SendText(text); err != nil {
		c.logger.Warn("Failed to send message", pipeline.Error(err))
	}
}

// Stop clears the queue and ends playback. Pending stream resolution is
// cancelled.
func (c *Coordinator) Stop() {
	c.cancelResolution()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.clear()
	c.queue.Clear()
	c.attempt = ""
	c.engine.Stop()
}

// Pause ends playback and keeps the reached offset for the next Play
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.clear()
	c.attempt = ""
	c.engine.Pause()
}

// Skip moves past the current song and plays the next one. It reports
// whether there is a song to play after skipping.
func (c *Coordinator) Skip(ctx context.Context, req PlayRequest) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempt = ""
	c.engine.Stop()

	if current := c.queue.Current(); current != nil {
		// A skipped song plays from the top if it comes round again
		if current.Time != nil {
			current.Time.ResetStart()
		}
		c.lastSong = current
		c.record(current, OutcomeSkipped)
	}
	c.queue.Advance()

	if !c.queue.HasCurrent() {
		c.status.clear()
		return false, nil
	}

	err := c.playLocked(ctx, req)
	return c.queue.HasCurrent(), err
}

// Leave stops playback, clears the queue and disconnects from voice
func (c *Coordinator) Leave() {
	c.cancelResolution()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.Clear()
	c.attempt = ""
	c.engine.Stop()
	c.releaseLocked()
}

// Enqueue appends songs and returns the new queue length
func (c *Coordinator) Enqueue(songs ...*common.Song) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.Add(songs...)
	return c.queue.Len()
}

// RemoveAt removes the song at index. Removing the current song halts
// playback first.
func (c *Coordinator) RemoveAt(index int) (*common.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index == c.queue.Cursor() && c.queue.HasCurrent() {
		c.status.clear()
		c.attempt = ""
		c.engine.Stop()
	}
	return c.queue.RemoveAt(index)
}

// ClearQueue empties the queue without touching the streaming song
func (c *Coordinator) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Clear()
}

// ShuffleQueue randomizes the queue. The current song stays current.
func (c *Coordinator) ShuffleQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Shuffle()
}

// Queue returns a snapshot of the queued songs
func (c *Coordinator) Queue() []*common.Song {
	return c.queue.List()
}

// Cursor returns the index of the current song
func (c *Coordinator) Cursor() int {
	return c.queue.Cursor()
}

// CurrentSong returns the song under the cursor, or nil
func (c *Coordinator) CurrentSong() *common.Song {
	return c.queue.Current()
}

// LastSong returns the most recently finished or skipped song
func (c *Coordinator) LastSong() *common.Song {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSong
}

// SetVolume sets and persists the volume, clamped to [0, 1]
func (c *Coordinator) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.SetVolume(v)
	c.persistLocked()
	if c.engine.IsPlaying() {
		c.status.refresh(c.queue.Current(), c.engine.Volume())
	}
}

// Volume returns the current volume
func (c *Coordinator) Volume() float64 {
	return c.engine.Volume()
}

// SetPlayMode sets and persists the play mode
func (c *Coordinator) SetPlayMode(mode common.PlayMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.SetMode(mode)
	c.persistLocked()
}

// PlayMode returns the current play mode
func (c *Coordinator) PlayMode() common.PlayMode {
	return c.queue.Mode()
}

// IsPlaying reports whether a song is streaming
func (c *Coordinator) IsPlaying() bool {
	return c.engine.IsPlaying()
}

// ResumeAfterReconnect plays the current song again in the last used voice
// channel when nothing is streaming.
func (c *Coordinator) ResumeAfterReconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRequest == nil || c.engine.IsPlaying() || !c.queue.HasCurrent() {
		return nil
	}

	c.logger.Info("Resuming playback after reconnect", pipeline.String("song", c.queue.Current().Name))
	return c.playLocked(ctx, *c.lastRequest)
}

// Close stops playback and releases the coordinator's contexts. The queue
// is kept.
func (c *Coordinator) Close() {
	c.cancelResolution()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.clear()
	c.attempt = ""
	c.engine.Stop()
	c.cancel()
}
