// Package pipeline streams decoded audio into a voice connection.
//
// # Core Components
//
//   - Engine: plays one song at a time, reporting the outcome on a channel
//   - FFmpegDecoder: launches ffmpeg for raw PCM or Ogg/Opus output
//   - Structured Logging: JSON/text/console logging with fields
//   - Metrics Collection: in-memory counters, gauges and histograms
//   - Configuration: PipelineConfig with defaults, environment overrides and validation
//
// # Usage Example
//
//	config := pipeline.DefaultPipelineConfig()
//	config.LoadFromEnvironment()
//
//	logger := pipeline.NewStructuredLogger(config.Logging)
//	metrics := pipeline.NewBasicMetricsCollector(logger)
//	decoder := pipeline.NewFFmpegDecoder(config.FFmpeg, config.Opus, logger)
//	engine := pipeline.NewEngine(config, decoder, logger, metrics)
//
//	events, err := engine.Play(ctx, voice, channel, song, 128000)
//	if err != nil {
//		return err
//	}
//	if events == nil {
//		return nil // voice is not connected
//	}
//	for ev := range events {
//		logger.Info("Song finished", pipeline.String("outcome", ev.Kind.String()))
//	}
//
// # Stream Loop
//
// Each read takes one frame from the decoder: 3840 bytes of PCM (20 ms of
// 48 kHz stereo) or 1500 bytes of Ogg/Opus. An empty read near the end of
// the song (less than EndThreshold left, or the length is unknown) finishes
// the song. Otherwise the engine waits StallDelay and tries again, failing
// with ErrStreamStall after MaxStallRetries consecutive empty reads.
//
// # State Management
//
// The engine moves through Idle, Loading, Streaming, PauseRequested, Paused,
// Stopped and Errored. Transitions are logged and counted.
//
// Stop and Pause cancel the active run and wait for it to exit. Their
// channel is closed without an event.
package pipeline
