package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/latoulicious/Conch/pkg/common"
)

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeCancelled
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeFailed:
		return "failed"
	default:
		return "cancelled"
	}
}

// Engine streams one song at a time from a decoder into a voice sink
type Engine struct {
	id      string
	config  *PipelineConfig
	decoder Decoder
	logger  Logger
	metrics *ScopedMetrics

	mu      sync.Mutex
	state   PlaybackState
	volume  float64
	current *common.Song
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates an idle engine
func NewEngine(config *PipelineConfig, decoder Decoder, logger Logger, collector MetricsCollector) *Engine {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if logger == nil {
		logger = DefaultLogger()
	}

	id := uuid.NewString()
	return &Engine{
		id:      id,
		config:  config,
		decoder: decoder,
		logger:  logger.With(String("component", "engine"), String("engine_id", id)),
		metrics: NewScopedMetrics(collector, map[string]string{"engine_id": id}),
		state:   StateIdle,
		volume:  1,
	}
}

// ID returns the unique engine identifier
func (e *Engine) ID() string {
	return e.id
}

// Play starts streaming song and returns a channel receiving exactly one
// terminal event. The channel is closed without an event when the run is
// stopped or paused. A disconnected voice client yields a nil channel and no
// error.
func (e *Engine) Play(ctx context.Context, voice VoiceClient, channel TextChannel, song *common.Song, bitrate int) (<-chan Event, error) {
	if voice == nil || !voice.IsConnected() {
		e.logger.Warn("Voice client is not connected, ignoring play request", String("song", song.String()))
		return nil, nil
	}
	if song == nil {
		return nil, errors.New("no song to play")
	}
	if bitrate <= 0 {
		bitrate = e.config.Voice.DefaultBitrate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		return nil, ErrEngineBusy
	}

	template := Event{Song: song, Voice: voice, Channel: channel, Bitrate: bitrate}
	events := make(chan Event, 1)

	if !song.IsResolved() {
		e.logger.Warn("Song has no stream locator, skipping", String("song", song.Name))
		if channel != nil {
			if err := channel.SendText(fmt.Sprintf("Could not find a stream for %s.", song.Name)); err != nil {
				e.logger.Warn("Failed to notify channel", Error(err))
			}
		}
		template.Kind = EventCompleted
		events <- template
		close(events)
		return events, nil
	}

	e.changeState(StateLoading, "play requested")

	compressed := song.HasAlternate()
	runCtx, cancel := context.WithCancel(ctx)

	song.Time.Begin()
	proc, err := e.decoder.Start(runCtx, DecodeRequest{
		Locator:    song.InputLocator(),
		Start:      song.Time.Start(),
		Compressed: compressed,
		Bitrate:    bitrate,
		Volume:     e.volume,
	})
	if err != nil {
		cancel()
		e.metrics.RecordError(CategoryProcess)
		e.changeState(StateErrored, "decoder failed to start")
		return nil, &DecoderStartError{Locator: song.InputLocator(), Err: err}
	}

	sink, err := openSink(voice, compressed, bitrate)
	if err != nil {
		cancel()
		_ = proc.Close()
		e.metrics.RecordError(CategoryVoice)
		e.changeState(StateErrored, "voice sink unavailable")
		return nil, NewPlaybackError(err, CategoryVoice, song.Name)
	}

	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.current = song
	e.changeState(StateStreaming, "decoder started")

	e.logger.Info("Streaming song",
		String("song", song.Name),
		Bool("compressed", compressed),
		Int("bitrate", bitrate),
		Duration("start", song.Time.Start()),
	)

	go e.run(runCtx, cancel, proc, sink, template, events, done, compressed)

	return events, nil
}

func openSink(voice VoiceClient, compressed bool, bitrate int) (AudioSink, error) {
	if compressed {
		return voice.CompressedAudioStream()
	}
	return voice.RawAudioStream(bitrate)
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, proc DecoderProcess, sink AudioSink, template Event, events chan<- Event, done chan struct{}, compressed bool) {
	defer close(done)
	defer close(events)

	stopTerminate := context.AfterFunc(ctx, func() {
		if err := proc.Terminate(); err != nil {
			e.logger.Warn("Failed to terminate decoder", Error(err))
		}
	})

	started := time.Now()
	result, frames, err := e.stream(ctx, proc, sink, template.Song, compressed)

	stopTerminate()
	if flushErr := sink.Flush(); flushErr != nil {
		e.logger.Debug("Failed to flush sink", Error(flushErr))
	}
	if closeErr := sink.Close(); closeErr != nil {
		e.logger.Debug("Failed to close sink", Error(closeErr))
	}
	if closeErr := proc.Close(); closeErr != nil {
		e.logger.Warn("Decoder exited with error", Error(closeErr))
	}
	cancel()

	e.metrics.RecordStream(time.Since(started), frames, result.String())

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancel = nil
	e.done = nil
	e.current = nil

	switch result {
	case outcomeCompleted:
		e.changeState(StateIdle, "stream completed")
		template.Kind = EventCompleted
		events <- template
	case outcomeFailed:
		e.logger.Error("Stream failed", String("song", template.Song.Name), Error(err))
		e.changeState(StateErrored, err.Error())
		template.Kind = EventError
		template.Err = err
		events <- template
	default:
		if e.state == StatePauseRequested {
			e.changeState(StatePaused, "paused")
		} else {
			e.changeState(StateStopped, "stopped")
		}
	}
}

// stream pumps decoder output into the sink until the song ends, stalls or
// the context is cancelled.
func (e *Engine) stream(ctx context.Context, proc DecoderProcess, sink AudioSink, song *common.Song, compressed bool) (outcome, int64, error) {
	cfg := e.config.Stream
	frameSize := cfg.PCMFrameSize
	category := CategoryStream
	if compressed {
		frameSize = cfg.CompressedFrameSize
	}

	buf := make([]byte, frameSize)
	var frames int64
	retries := 0

	for {
		if ctx.Err() != nil {
			return outcomeCancelled, frames, nil
		}

		n, err := io.ReadFull(proc, buf)
		if ctx.Err() != nil {
			return outcomeCancelled, frames, nil
		}

		if n == 0 {
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				e.metrics.RecordError(CategoryProcess)
				return outcomeFailed, frames, NewPlaybackError(err, CategoryProcess, song.Name)
			}

			if song.Time.Remaining() < cfg.EndThreshold {
				return outcomeCompleted, frames, nil
			}

			retries++
			e.metrics.RecordStall()
			if retries >= cfg.MaxStallRetries {
				e.metrics.RecordError(category)
				return outcomeFailed, frames, NewPlaybackError(ErrStreamStall, category, song.Name)
			}

			if !sleepContext(ctx, cfg.StallDelay) {
				return outcomeCancelled, frames, nil
			}
			continue
		}

		retries = 0
		chunk := buf[:n]
		if !compressed {
			applyVolume(chunk, e.Volume())
		}

		if sink.CanWrite() {
			if _, werr := sink.Write(chunk); werr != nil {
				if ctx.Err() != nil {
					return outcomeCancelled, frames, nil
				}
				e.metrics.RecordError(CategoryVoice)
				return outcomeFailed, frames, NewPlaybackError(werr, CategoryVoice, song.Name)
			}
			frames++
		}

		song.Time.Advance(time.Duration(n) * cfg.FrameDuration / time.Duration(frameSize))
	}
}

// Stop ends the current run and rewinds the song to its beginning. It is a
// no-op on an idle engine.
func (e *Engine) Stop() {
	song := e.halt(StateStopped)
	if song != nil {
		song.Time.ResetStart()
	}
}

// Pause ends the current run and keeps the reached offset as the start of
// the next run.
func (e *Engine) Pause() {
	song := e.halt(StatePauseRequested)
	if song != nil {
		song.Time.MarkResumePoint()
	}
}

// halt cancels the active run and waits for it to exit
func (e *Engine) halt(requested PlaybackState) *common.Song {
	e.mu.Lock()
	if e.done == nil {
		e.mu.Unlock()
		return nil
	}

	song := e.current
	done := e.done
	if requested == StatePauseRequested {
		e.changeState(StatePauseRequested, "pause requested")
	}
	e.cancel()
	e.mu.Unlock()

	<-done
	return song
}

// SetVolume sets the volume, clamped to [0, 1]
func (e *Engine) SetVolume(v float64) {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

// Volume returns the current volume
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// IsPlaying reports whether a run is active
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done != nil
}

// State returns the current engine state
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// changeState must be called with e.mu held
func (e *Engine) changeState(newState PlaybackState, reason string) {
	oldState := e.state
	if oldState == newState {
		return
	}
	e.state = newState

	e.logger.Debug("Engine state changed",
		String("from", oldState.String()),
		String("to", newState.String()),
		String("reason", reason),
	)
	e.metrics.RecordStateChange(oldState, newState)
}

// applyVolume scales s16le samples in place
func applyVolume(pcm []byte, volume float64) {
	if volume >= 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		scaled := float64(sample) * volume
		scaled = math.Max(math.MinInt16, math.Min(math.MaxInt16, scaled))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(scaled)))
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
