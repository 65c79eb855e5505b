package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// PipelineConfig contains the configuration for playback, resolution and
// connection supervision.
type PipelineConfig struct {
	Stream     StreamConfig     `koanf:"stream" json:"stream"`
	FFmpeg     FFmpegConfig     `koanf:"ffmpeg" json:"ffmpeg"`
	Opus       OpusConfig       `koanf:"opus" json:"opus"`
	Voice      VoiceConfig      `koanf:"voice" json:"voice"`
	Resolver   ResolverConfig   `koanf:"resolver" json:"resolver"`
	Supervisor SupervisorConfig `koanf:"supervisor" json:"supervisor"`
	Status     StatusConfig     `koanf:"status" json:"status"`
	Logging    LoggingConfig    `koanf:"logging" json:"logging"`
	Database   DatabaseConfig   `koanf:"database" json:"database"`

	Maintenance MaintenanceConfig `koanf:"maintenance" json:"maintenance"`
	Lyrics      LyricsConfig      `koanf:"lyrics" json:"lyrics"`
}

// StreamConfig controls the streaming loop
type StreamConfig struct {
	PCMFrameSize        int           `koanf:"pcm_frame_size" json:"pcm_frame_size"`
	CompressedFrameSize int           `koanf:"compressed_frame_size" json:"compressed_frame_size"`
	FrameDuration       time.Duration `koanf:"frame_duration" json:"frame_duration"`
	StallDelay          time.Duration `koanf:"stall_delay" json:"stall_delay"`
	MaxStallRetries     int           `koanf:"max_stall_retries" json:"max_stall_retries"`
	EndThreshold        time.Duration `koanf:"end_threshold" json:"end_threshold"`
}

// FFmpegConfig contains configuration for the decoder process
type FFmpegConfig struct {
	BinaryPath    string        `koanf:"binary_path" json:"binary_path"`
	ReconnectArgs []string      `koanf:"reconnect_args" json:"reconnect_args"`
	LogLevel      string        `koanf:"log_level" json:"log_level"`
	WaitDelay     time.Duration `koanf:"wait_delay" json:"wait_delay"`
}

// OpusConfig contains configuration for Opus encoding of raw frames
type OpusConfig struct {
	SampleRate    int `koanf:"sample_rate" json:"sample_rate"`
	Channels      int `koanf:"channels" json:"channels"`
	FrameSize     int `koanf:"frame_size" json:"frame_size"`
	MaxPacketSize int `koanf:"max_packet_size" json:"max_packet_size"`
}

// VoiceConfig contains configuration for the voice transport
type VoiceConfig struct {
	DefaultBitrate int           `koanf:"default_bitrate" json:"default_bitrate"`
	SendTimeout    time.Duration `koanf:"send_timeout" json:"send_timeout"`
	JoinRetries    int           `koanf:"join_retries" json:"join_retries"`
	JoinRetryDelay time.Duration `koanf:"join_retry_delay" json:"join_retry_delay"`
	ReadyTimeout   time.Duration `koanf:"ready_timeout" json:"ready_timeout"`
}

// ResolverConfig contains configuration for song resolution
type ResolverConfig struct {
	YtdlpPath      string        `koanf:"ytdlp_path" json:"ytdlp_path"`
	LocatorTimeout time.Duration `koanf:"locator_timeout" json:"locator_timeout"`
	PreferOpus     bool          `koanf:"prefer_opus" json:"prefer_opus"`
	PlaylistLimit  int           `koanf:"playlist_limit" json:"playlist_limit"`
}

// SupervisorConfig contains the reconnect backoff settings
type SupervisorConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay" json:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay" json:"max_delay"`
	MaxAttempt int           `koanf:"max_attempt" json:"max_attempt"`
}

// StatusConfig limits how often the now playing message is edited
type StatusConfig struct {
	EditInterval time.Duration `koanf:"edit_interval" json:"edit_interval"`
	EditBurst    int           `koanf:"edit_burst" json:"edit_burst"`
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
	Output string `koanf:"output" json:"output"`
}

// DatabaseConfig points at the sqlite file holding guild settings and history
type DatabaseConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Path    string `koanf:"path" json:"path"`
}

// MaintenanceConfig schedules the background housekeeping jobs. Schedules
// are cron expressions with a leading seconds field.
type MaintenanceConfig struct {
	Enabled        bool   `koanf:"enabled" json:"enabled"`
	Schedule       string `koanf:"schedule" json:"schedule"`
	BackupDir      string `koanf:"backup_dir" json:"backup_dir"`
	MetricsReports bool   `koanf:"metrics_reports" json:"metrics_reports"`
}

// LyricsConfig controls the lyrics command
type LyricsConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	BaseURL string `koanf:"base_url" json:"base_url"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Stream: StreamConfig{
			PCMFrameSize:        3840, // 960 samples * 2 channels * 2 bytes
			CompressedFrameSize: 1500,
			FrameDuration:       20 * time.Millisecond,
			StallDelay:          100 * time.Millisecond,
			MaxStallRetries:     50,
			EndThreshold:        time.Second,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ReconnectArgs: []string{
				"-reconnect", "1",
				"-reconnect_streamed", "1",
				"-reconnect_delay_max", "5",
			},
			LogLevel:  "error",
			WaitDelay: 3 * time.Second,
		},
		Opus: OpusConfig{
			SampleRate:    48000,
			Channels:      2,
			FrameSize:     960,
			MaxPacketSize: 3840,
		},
		Voice: VoiceConfig{
			DefaultBitrate: 128000,
			SendTimeout:    100 * time.Millisecond,
			JoinRetries:    3,
			JoinRetryDelay: time.Second,
			ReadyTimeout:   10 * time.Second,
		},
		Resolver: ResolverConfig{
			YtdlpPath:      "yt-dlp",
			LocatorTimeout: 30 * time.Second,
			PreferOpus:     false,
			PlaylistLimit:  100,
		},
		Supervisor: SupervisorConfig{
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
			MaxAttempt: 4,
		},
		Status: StatusConfig{
			EditInterval: 5 * time.Second,
			EditBurst:    1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "conch.db",
		},
		Maintenance: MaintenanceConfig{
			Enabled:        true,
			Schedule:       "0 0 * * * *",
			MetricsReports: true,
		},
		Lyrics: LyricsConfig{
			Enabled: true,
		},
	}
}

// LoadFromEnvironment loads configuration values from environment variables
func (c *PipelineConfig) LoadFromEnvironment() {
	// Stream
	if val := os.Getenv("PIPELINE_STALL_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			c.Stream.MaxStallRetries = retries
		}
	}

	if val := os.Getenv("PIPELINE_STALL_DELAY"); val != "" {
		if delay, err := time.ParseDuration(val); err == nil {
			c.Stream.StallDelay = delay
		}
	}

	// FFmpeg
	if val := os.Getenv("PIPELINE_FFMPEG_PATH"); val != "" {
		c.FFmpeg.BinaryPath = val
	}

	// Voice
	if val := os.Getenv("PIPELINE_VOICE_BITRATE"); val != "" {
		if bitrate, err := strconv.Atoi(val); err == nil {
			c.Voice.DefaultBitrate = bitrate
		}
	}

	// Resolver
	if val := os.Getenv("PIPELINE_YTDLP_PATH"); val != "" {
		c.Resolver.YtdlpPath = val
	}

	if val := os.Getenv("PIPELINE_PREFER_OPUS"); val != "" {
		c.Resolver.PreferOpus = val == "true" || val == "1"
	}

	if val := os.Getenv("PIPELINE_LOCATOR_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			c.Resolver.LocatorTimeout = timeout
		}
	}

	// Logging
	if val := os.Getenv("PIPELINE_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}

	if val := os.Getenv("PIPELINE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}

	if val := os.Getenv("PIPELINE_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}

	// Database
	if val := os.Getenv("PIPELINE_DB_ENABLED"); val != "" {
		c.Database.Enabled = val == "true" || val == "1"
	}

	// Maintenance
	if val := os.Getenv("PIPELINE_MAINTENANCE_SCHEDULE"); val != "" {
		c.Maintenance.Schedule = val
	}

	if val := os.Getenv("PIPELINE_BACKUP_DIR"); val != "" {
		c.Maintenance.BackupDir = val
	}

	// Lyrics
	if val := os.Getenv("PIPELINE_LYRICS_ENABLED"); val != "" {
		c.Lyrics.Enabled = val == "true" || val == "1"
	}
}

// Validate validates the configuration and returns any errors
func (c *PipelineConfig) Validate() error {
	var errors []string

	// Stream
	if c.Stream.PCMFrameSize <= 0 || c.Stream.PCMFrameSize%4 != 0 {
		errors = append(errors, "stream pcm_frame_size must be a positive multiple of 4")
	}

	if c.Stream.CompressedFrameSize <= 0 {
		errors = append(errors, "stream compressed_frame_size must be > 0")
	}

	if c.Stream.FrameDuration <= 0 {
		errors = append(errors, "stream frame_duration must be > 0")
	}

	if c.Stream.StallDelay < 0 {
		errors = append(errors, "stream stall_delay must be >= 0")
	}

	if c.Stream.MaxStallRetries <= 0 {
		errors = append(errors, "stream max_stall_retries must be > 0")
	}

	// FFmpeg
	if c.FFmpeg.BinaryPath == "" {
		errors = append(errors, "ffmpeg binary_path cannot be empty")
	}

	// Opus
	if c.Opus.SampleRate <= 0 {
		errors = append(errors, "opus sample_rate must be > 0")
	}

	if c.Opus.Channels <= 0 {
		errors = append(errors, "opus channels must be > 0")
	}

	if c.Opus.FrameSize <= 0 {
		errors = append(errors, "opus frame_size must be > 0")
	}

	// Voice
	if c.Voice.DefaultBitrate < 8000 || c.Voice.DefaultBitrate > 512000 {
		errors = append(errors, "voice default_bitrate must be between 8000 and 512000")
	}

	if c.Voice.JoinRetries < 1 {
		errors = append(errors, "voice join_retries must be >= 1")
	}

	// Resolver
	if c.Resolver.LocatorTimeout <= 0 {
		errors = append(errors, "resolver locator_timeout must be > 0")
	}

	if c.Resolver.PlaylistLimit < 0 {
		errors = append(errors, "resolver playlist_limit must be >= 0")
	}

	// Supervisor
	if c.Supervisor.BaseDelay <= 0 {
		errors = append(errors, "supervisor base_delay must be > 0")
	}

	if c.Supervisor.MaxDelay < c.Supervisor.BaseDelay {
		errors = append(errors, "supervisor max_delay must be >= base_delay")
	}

	if c.Supervisor.MaxAttempt < 0 {
		errors = append(errors, "supervisor max_attempt must be >= 0")
	}

	// Status
	if c.Status.EditInterval < 0 {
		errors = append(errors, "status edit_interval must be >= 0")
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "logging level must be one of: debug, info, warn, error, fatal")
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "logging format must be one of: json, text, console")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errors = append(errors, "database path cannot be empty when enabled")
	}

	// Maintenance
	if c.Maintenance.Enabled && c.Maintenance.Schedule == "" {
		errors = append(errors, "maintenance schedule cannot be empty when enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}
