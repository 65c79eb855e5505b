package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3840, cfg.Stream.PCMFrameSize)
	assert.Equal(t, 1500, cfg.Stream.CompressedFrameSize)
	assert.Equal(t, 50, cfg.Stream.MaxStallRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Stream.StallDelay)
	assert.Equal(t, time.Second, cfg.Stream.EndThreshold)
	assert.Equal(t, 30*time.Second, cfg.Resolver.LocatorTimeout)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
		want   string
	}{
		{name: "pcm frame not sample aligned", mutate: func(c *PipelineConfig) { c.Stream.PCMFrameSize = 3841 }, want: "pcm_frame_size"},
		{name: "no stall retries", mutate: func(c *PipelineConfig) { c.Stream.MaxStallRetries = 0 }, want: "max_stall_retries"},
		{name: "empty ffmpeg path", mutate: func(c *PipelineConfig) { c.FFmpeg.BinaryPath = "" }, want: "binary_path"},
		{name: "negative sample rate", mutate: func(c *PipelineConfig) { c.Opus.SampleRate = -1 }, want: "sample_rate"},
		{name: "bitrate too high", mutate: func(c *PipelineConfig) { c.Voice.DefaultBitrate = 1_000_000 }, want: "default_bitrate"},
		{name: "max delay below base", mutate: func(c *PipelineConfig) { c.Supervisor.MaxDelay = time.Second }, want: "max_delay"},
		{name: "bad log level", mutate: func(c *PipelineConfig) { c.Logging.Level = "verbose" }, want: "logging level"},
		{name: "database without path", mutate: func(c *PipelineConfig) { c.Database.Path = "" }, want: "database path"},
		{name: "maintenance without schedule", mutate: func(c *PipelineConfig) { c.Maintenance.Schedule = "" }, want: "maintenance schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PIPELINE_FFMPEG_PATH", "/usr/local/bin/ffmpeg")
	t.Setenv("PIPELINE_STALL_RETRIES", "10")
	t.Setenv("PIPELINE_STALL_DELAY", "250ms")
	t.Setenv("PIPELINE_PREFER_OPUS", "true")
	t.Setenv("PIPELINE_VOICE_BITRATE", "not-a-number")
	t.Setenv("PIPELINE_LOG_LEVEL", "debug")
	t.Setenv("PIPELINE_BACKUP_DIR", "/var/backups/conch")

	cfg := DefaultPipelineConfig()
	cfg.LoadFromEnvironment()

	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.FFmpeg.BinaryPath)
	assert.Equal(t, 10, cfg.Stream.MaxStallRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.StallDelay)
	assert.True(t, cfg.Resolver.PreferOpus)
	assert.Equal(t, 128000, cfg.Voice.DefaultBitrate)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/backups/conch", cfg.Maintenance.BackupDir)
}

func TestStructuredLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "debug", "json")

	child := logger.With(String("guild_id", "42"))
	child.Info("Song queued", String("song", "a"), Int("position", 3))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "Song queued", entry.Message)
	assert.Equal(t, "42", entry.Fields["guild_id"])
	assert.Equal(t, "a", entry.Fields["song"])
	assert.EqualValues(t, 3, entry.Fields["position"])
}

func TestStructuredLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warn", "text")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown", String("b", "2"), String("a", "1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown {a=1, b=2}")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestStdLogAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewStdLogAdapter(NewWriterLogger(&buf, "info", "text"))

	n, err := adapter.Write([]byte("websocket closed\n"))
	require.NoError(t, err)
	assert.Equal(t, len("websocket closed\n"), n)
	assert.Contains(t, buf.String(), "websocket closed {source=stdlog}")
}

func TestMetricsCollector(t *testing.T) {
	collector := NewBasicMetricsCollector(NullLogger())
	tags := map[string]string{"b": "2", "a": "1"}

	collector.RecordCounter("frames", 2, tags)
	collector.RecordCounter("frames", 3, map[string]string{"a": "1", "b": "2"})
	m, ok := collector.GetMetric("frames", tags)
	require.True(t, ok)
	assert.Equal(t, 5.0, m.Value)

	collector.RecordTiming("duration", 10*time.Millisecond, nil)
	collector.RecordTiming("duration", 30*time.Millisecond, nil)
	h, ok := collector.GetMetric("duration", nil)
	require.True(t, ok)
	require.NotNil(t, h.Stats)
	assert.Equal(t, 2.0, h.Stats.Count)
	assert.Equal(t, 10.0, h.Stats.Min)
	assert.Equal(t, 30.0, h.Stats.Max)
	assert.Equal(t, 20.0, h.Stats.Avg())

	collector.RecordGauge("volume", 0.5, nil)
	assert.Len(t, collector.GetAllMetrics().Metrics, 3)

	collector.Reset()
	assert.Empty(t, collector.GetAllMetrics().Metrics)
}

func TestScopedMetrics(t *testing.T) {
	collector := NewBasicMetricsCollector(NullLogger())
	scoped := NewScopedMetrics(collector, map[string]string{"guild_id": "1"})

	scoped.RecordStateChange(StateIdle, StateStreaming)
	scoped.RecordStall()
	scoped.RecordStall()

	m, ok := collector.GetMetric("playback.state.changes", map[string]string{
		"guild_id":   "1",
		"from_state": "idle",
		"to_state":   "streaming",
	})
	require.True(t, ok)
	assert.Equal(t, 1.0, m.Value)
	assert.Equal(t, 2.0, collector.SumCounter("playback.stream.stalls"))

	var nilScoped *ScopedMetrics
	assert.NotPanics(t, func() { nilScoped.RecordStall() })
}
