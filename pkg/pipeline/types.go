package pipeline

import (
	"time"

	"github.com/latoulicious/Conch/pkg/common"
)

// PlaybackState represents the current state of an engine
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateLoading
	StateStreaming
	StatePauseRequested
	StatePaused
	StateStopped
	StateErrored
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateStreaming:
		return "streaming"
	case StatePauseRequested:
		return "pause_requested"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrorCategory groups playback errors for logging and metrics
type ErrorCategory int

const (
	CategoryStream ErrorCategory = iota
	CategoryProcess
	CategoryVoice
	CategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryStream:
		return "stream"
	case CategoryProcess:
		return "process"
	case CategoryVoice:
		return "voice"
	default:
		return "unknown"
	}
}

// EventKind tells how a stream run ended
type EventKind int

const (
	EventCompleted EventKind = iota
	EventError
)

func (k EventKind) String() string {
	if k == EventError {
		return "error"
	}
	return "completed"
}

// Event is the single terminal notification of a stream run. It carries the
// collaborators of the run so the receiver can start the next song on them.
type Event struct {
	Kind    EventKind
	Song    *common.Song
	Voice   VoiceClient
	Channel TextChannel
	Bitrate int
	Err     error
}

// DecodeRequest describes one decoder invocation
type DecodeRequest struct {
	Locator    string
	Start      time.Duration
	Compressed bool
	Bitrate    int
	Volume     float64
}

// StateChange represents an engine state transition
type StateChange struct {
	From      PlaybackState
	To        PlaybackState
	Timestamp time.Time
	Reason    string
}
