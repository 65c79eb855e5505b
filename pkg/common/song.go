package common

import (
	"fmt"
	"sync"
	"time"
)

// PlaybackTime tracks where a song is in its stream. It is shared between the
// streaming goroutine that advances it and readers rendering progress.
type PlaybackTime struct {
	mu      sync.RWMutex
	start   time.Duration
	current time.Duration
	length  time.Duration
}

// NewPlaybackTime creates a playback time starting at the given offset
func NewPlaybackTime(start, length time.Duration) *PlaybackTime {
	if start < 0 {
		start = 0
	}
	return &PlaybackTime{start: start, current: start, length: length}
}

// Start returns the offset the next stream will begin at
func (pt *PlaybackTime) Start() time.Duration {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.start
}

// Current returns the current stream offset
func (pt *PlaybackTime) Current() time.Duration {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.current
}

// Length returns the total length, zero when unknown
func (pt *PlaybackTime) Length() time.Duration {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.length
}

// Remaining returns length minus the current offset
func (pt *PlaybackTime) Remaining() time.Duration {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.length - pt.current
}

// Begin rewinds the current offset to the start offset. Called when a stream starts.
func (pt *PlaybackTime) Begin() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.current = pt.start
}

// Advance moves the current offset forward. Negative values are ignored so
// the offset never goes backwards while streaming.
func (pt *PlaybackTime) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.current += d
}

// ResetStart clears the resume point; the next stream starts from zero.
func (pt *PlaybackTime) ResetStart() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.start = 0
	pt.current = 0
}

// MarkResumePoint makes the current offset the start of the next stream.
func (pt *PlaybackTime) MarkResumePoint() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.start = pt.current
}

func (pt *PlaybackTime) clone() *PlaybackTime {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return &PlaybackTime{start: pt.start, current: pt.current, length: pt.length}
}

// Song is a queue entry. Everything except Time is fixed after creation;
// resolving a stream locator produces a new Song through WithLocators.
type Song struct {
	Name             string
	Reference        string // what the user submitted, or the canonical page url
	StreamLocator    string // direct url ffmpeg can read
	AlternateLocator string // opus encoded alternative, streamed as compressed frames
	Author           string
	ThumbnailURL     string
	RequestedBy      string
	AddedAt          time.Time

	Time *PlaybackTime
}

// NewSong creates an unresolved song
func NewSong(name, reference string, length time.Duration) *Song {
	return &Song{
		Name:      name,
		Reference: reference,
		AddedAt:   time.Now(),
		Time:      NewPlaybackTime(0, length),
	}
}

// IsResolved reports whether the song has a stream the decoder can open
func (s *Song) IsResolved() bool {
	return s != nil && s.StreamLocator != ""
}

// HasAlternate reports whether the compressed-frame path should be used
func (s *Song) HasAlternate() bool {
	return s.AlternateLocator != ""
}

// InputLocator returns the locator the decoder should read from
func (s *Song) InputLocator() string {
	if s.HasAlternate() {
		return s.AlternateLocator
	}
	return s.StreamLocator
}

// WithLocators returns a copy of the song carrying the given stream locators
func (s *Song) WithLocators(stream, alternate string) *Song {
	cp := *s
	cp.StreamLocator = stream
	cp.AlternateLocator = alternate
	if s.Time != nil {
		cp.Time = s.Time.clone()
	} else {
		cp.Time = NewPlaybackTime(0, 0)
	}
	return &cp
}

// WithStart returns a copy of the song that begins streaming at start
func (s *Song) WithStart(start time.Duration) *Song {
	cp := s.WithLocators(s.StreamLocator, s.AlternateLocator)
	cp.Time = NewPlaybackTime(start, cp.Time.Length())
	return cp
}

func (s *Song) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Reference)
}

// FormatProgress renders "current / total" the way the now playing message shows it
func (s *Song) FormatProgress() string {
	length := s.Time.Length()
	return fmt.Sprintf("%s / %s", FormatDuration(s.Time.Current(), length), formatTotal(length))
}

func formatTotal(length time.Duration) string {
	if length <= 0 {
		return "??"
	}
	return FormatDuration(length, length)
}

// FormatDuration renders d as mm:ss, or hh:mm:ss when the reference length exceeds an hour
func FormatDuration(d, reference time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h, m, sec := total/3600, (total%3600)/60, total%60
	if reference >= time.Hour {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", h*60+m, sec)
}
