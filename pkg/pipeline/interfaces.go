package pipeline

import (
	"context"
	"io"
	"time"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// MetricsCollector defines the interface for metrics collection
type MetricsCollector interface {
	RecordCounter(name string, value int64, tags map[string]string)
	RecordGauge(name string, value float64, tags map[string]string)
	RecordHistogram(name string, value float64, tags map[string]string)
	RecordTiming(name string, duration time.Duration, tags map[string]string)
}

// VoiceClient is a joined voice connection able to open audio sinks
type VoiceClient interface {
	IsConnected() bool
	// RawAudioStream accepts 48 kHz stereo s16le PCM
	RawAudioStream(bitrate int) (AudioSink, error)
	// CompressedAudioStream accepts an Ogg/Opus byte stream
	CompressedAudioStream() (AudioSink, error)
}

// AudioSink receives decoded audio bytes
type AudioSink interface {
	io.Writer
	CanWrite() bool
	Flush() error
	Close() error
}

// TextChannel receives plain notifications
type TextChannel interface {
	SendText(text string) error
}

// Decoder launches a decoder process for a request
type Decoder interface {
	Start(ctx context.Context, req DecodeRequest) (DecoderProcess, error)
}

// DecoderProcess is a running decoder. Reads return decoded output.
type DecoderProcess interface {
	io.Reader
	// Terminate asks the process to exit gracefully
	Terminate() error
	// Close releases the process and waits for it to exit
	Close() error
}
