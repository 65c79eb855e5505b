package common

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

// PlayMode decides what happens to the current song once it finishes
type PlayMode int

const (
	// PlayModeQueue removes the finished song
	PlayModeQueue PlayMode = iota
	// PlayModePlaylist keeps every song and loops around
	PlayModePlaylist
)

func (m PlayMode) String() string {
	switch m {
	case PlayModeQueue:
		return "queue"
	case PlayModePlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// ParsePlayMode converts a stored mode name back into a PlayMode
func ParsePlayMode(s string) (PlayMode, error) {
	switch s {
	case "queue", "":
		return PlayModeQueue, nil
	case "playlist":
		return PlayModePlaylist, nil
	default:
		return PlayModeQueue, fmt.Errorf("unknown play mode: %q", s)
	}
}

// Queue is the ordered song list of one guild with a cursor on the current song
type Queue struct {
	guildID string
	items   []*Song
	cursor  int
	mode    PlayMode
	mu      sync.RWMutex
}

// NewQueue creates an empty queue for a guild
func NewQueue(guildID string) *Queue {
	return &Queue{
		guildID: guildID,
		items:   make([]*Song, 0),
	}
}

// GuildID returns the guild the queue belongs to
func (q *Queue) GuildID() string {
	return q.guildID
}

// Add appends songs in order
func (q *Queue) Add(songs ...*Song) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range songs {
		if s != nil {
			q.items = append(q.items, s)
		}
	}
}

// Mode returns the current play mode
func (q *Queue) Mode() PlayMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.mode
}

// SetMode changes the play mode
func (q *Queue) SetMode(mode PlayMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mode = mode
}

// Current returns the song under the cursor, nil when the queue is empty
func (q *Queue) Current() *Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentLocked()
}

func (q *Queue) currentLocked() *Song {
	if q.cursor >= 0 && q.cursor < len(q.items) {
		return q.items[q.cursor]
	}
	return nil
}

// HasCurrent reports whether there is a song under the cursor
func (q *Queue) HasCurrent() bool {
	return q.Current() != nil
}

// Cursor returns the index of the current song
func (q *Queue) Cursor() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cursor
}

// Len returns the number of songs in the queue
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// List returns a copy of the songs in order
func (q *Queue) List() []*Song {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Song, len(q.items))
	copy(result, q.items)
	return result
}

// Names returns the display names in queue order
func (q *Queue) Names() []string {
	return lo.Map(q.List(), func(s *Song, _ int) string { return s.Name })
}

// ReplaceCurrent swaps the song under the cursor, used once a stub is resolved
func (q *Queue) ReplaceCurrent(song *Song) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentLocked() == nil {
		return fmt.Errorf("queue for guild %s has no current song", q.guildID)
	}
	q.items[q.cursor] = song
	return nil
}

// RemoveAt removes the song at index and keeps the cursor on the same song
// when possible.
func (q *Queue) RemoveAt(index int) (*Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(index)
}

func (q *Queue) removeLocked(index int) (*Song, error) {
	if index < 0 || index >= len(q.items) {
		return nil, fmt.Errorf("invalid index: %d", index)
	}

	removed := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)

	if index < q.cursor {
		q.cursor--
	}
	if q.cursor >= len(q.items) {
		q.cursor = 0
	}
	return removed, nil
}

// RemoveCurrent drops the song under the cursor
func (q *Queue) RemoveCurrent() *Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentLocked() == nil {
		return nil
	}
	removed, _ := q.removeLocked(q.cursor)
	return removed
}

// Advance moves past the current song according to the play mode
func (q *Queue) Advance() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.cursor = 0
		return
	}

	switch q.mode {
	case PlayModePlaylist:
		q.cursor = (q.cursor + 1) % len(q.items)
	default:
		if q.currentLocked() != nil {
			_, _ = q.removeLocked(q.cursor)
		}
	}
}

// Clear empties the queue
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]*Song, 0)
	q.cursor = 0
}

// Shuffle randomizes the order. The current song is moved to the front and
// stays current so a playing song is never lost.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	current := q.currentLocked()
	if current == nil {
		mutable.Shuffle(q.items)
		return
	}

	rest := make([]*Song, 0, len(q.items)-1)
	for i, s := range q.items {
		if i != q.cursor {
			rest = append(rest, s)
		}
	}
	mutable.Shuffle(rest)

	q.items = append([]*Song{current}, rest...)
	q.cursor = 0
}
