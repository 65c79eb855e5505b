package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStreamStall is returned when the decoder produced no output for too
	// many consecutive reads before the song was near its end.
	ErrStreamStall = errors.New("audio stream stalled")

	// ErrEngineBusy is returned when Play is called while a run is active
	ErrEngineBusy = errors.New("engine is already playing")
)

// DecoderStartError reports that the decoder process could not be launched
type DecoderStartError struct {
	Locator string
	Err     error
}

func (e *DecoderStartError) Error() string {
	return fmt.Sprintf("failed to start decoder for %s: %v", e.Locator, e.Err)
}

func (e *DecoderStartError) Unwrap() error {
	return e.Err
}

// PlaybackError is a classified failure of a stream run
type PlaybackError struct {
	Err       error
	Category  ErrorCategory
	Song      string
	Timestamp time.Time
}

// NewPlaybackError classifies err for the given song
func NewPlaybackError(err error, category ErrorCategory, song string) *PlaybackError {
	return &PlaybackError{
		Err:       err,
		Category:  category,
		Song:      song,
		Timestamp: time.Now(),
	}
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s error while playing %q: %v", e.Category, e.Song, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
