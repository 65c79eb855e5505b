package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/database"
	"github.com/latoulicious/Conch/pkg/discord"
	"github.com/latoulicious/Conch/pkg/lyrics"
	"github.com/latoulicious/Conch/pkg/player"
	"github.com/latoulicious/Conch/pkg/resolver"
)

type fakePlayer struct {
	queue    *common.Queue
	playing  bool
	volume   float64
	playErr  error
	plays    []player.PlayRequest
	stopped  int
	paused   int
	left     int
	shuffled int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{queue: common.NewQueue("guild-1"), volume: 1}
}

func (p *fakePlayer) Play(_ context.Context, req player.PlayRequest) error {
	p.plays = append(p.plays, req)
	if p.playErr != nil {
		return p.playErr
	}
	p.playing = p.queue.HasCurrent()
	return nil
}

func (p *fakePlayer) Stop()  { p.stopped++; p.playing = false; p.queue.Clear() }
func (p *fakePlayer) Pause() { p.paused++; p.playing = false }
func (p *fakePlayer) Leave() { p.left++; p.playing = false; p.queue.Clear() }

func (p *fakePlayer) Skip(ctx context.Context, req player.PlayRequest) (bool, error) {
	p.queue.Advance()
	if !p.queue.HasCurrent() {
		p.playing = false
		return false, nil
	}
	return true, p.Play(ctx, req)
}

func (p *fakePlayer) Enqueue(songs ...*common.Song) int {
	p.queue.Add(songs...)
	return p.queue.Len()
}

func (p *fakePlayer) RemoveAt(index int) (*common.Song, error) { return p.queue.RemoveAt(index) }
func (p *fakePlayer) ClearQueue()                              { p.queue.Clear() }
func (p *fakePlayer) ShuffleQueue()                            { p.shuffled++ }
func (p *fakePlayer) Queue() []*common.Song                    { return p.queue.List() }
func (p *fakePlayer) Cursor() int                              { return p.queue.Cursor() }
func (p *fakePlayer) CurrentSong() *common.Song                { return p.queue.Current() }
func (p *fakePlayer) LastSong() *common.Song                   { return nil }
func (p *fakePlayer) SetVolume(v float64)                      { p.volume = v }
func (p *fakePlayer) Volume() float64                          { return p.volume }
func (p *fakePlayer) SetPlayMode(mode common.PlayMode)         { p.queue.SetMode(mode) }
func (p *fakePlayer) PlayMode() common.PlayMode                { return p.queue.Mode() }
func (p *fakePlayer) IsPlaying() bool                          { return p.playing }

type fakeResolver struct {
	playlist []*common.Song
	err      error
	starts   []time.Duration
}

func (r *fakeResolver) Resolve(_ context.Context, reference string, start time.Duration) (*common.Song, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.starts = append(r.starts, start)
	return common.NewSong("Song "+reference, reference, time.Minute).WithStart(start), nil
}

func (r *fakeResolver) IsPlaylist(reference string) bool {
	return reference == "playlist"
}

func (r *fakeResolver) Expand(context.Context, string) ([]*common.Song, error) {
	return r.playlist, nil
}

type fakeEnv struct {
	voiceErr error
}

func (e *fakeEnv) UserVoiceChannel(string, string) (string, error) {
	if e.voiceErr != nil {
		return "", e.voiceErr
	}
	return "voice-1", nil
}

func (e *fakeEnv) ChannelBitrate(string) int { return 96000 }

func (e *fakeEnv) TextChannel(channelID string) player.StatusChannel {
	return discord.NewTextChannel(nil, channelID, nil)
}

type fakeHistory struct {
	entries []*database.HistoryEntry
}

func (h *fakeHistory) Recent(_ string, limit int) ([]*database.HistoryEntry, error) {
	return h.entries[:min(limit, len(h.entries))], nil
}

type harness struct {
	music    *Music
	player   *fakePlayer
	resolver *fakeResolver
	env      *fakeEnv
	history  *fakeHistory
}

func newHarness() *harness {
	h := &harness{
		player:   newFakePlayer(),
		resolver: &fakeResolver{},
		env:      &fakeEnv{},
		history:  &fakeHistory{},
	}
	h.music = NewMusic(func(string) Player { return h.player }, h.resolver, h.history, h.env, nil)
	return h
}

func (h *harness) run(name string, options Options) Response {
	return h.music.Handle(context.Background(), name, Request{
		GuildID:   "guild-1",
		ChannelID: "text-1",
		UserID:    "user-1",
		Username:  "someone",
		Options:   options,
	})
}

func TestHandleRejectsUnknownAndDirectMessages(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.run("dance", nil).Content, "Unknown command")

	resp := h.music.Handle(context.Background(), "queue", Request{})
	assert.Contains(t, resp.Content, "only work in servers")
}

func TestPlayEnqueuesAndStarts(t *testing.T) {
	h := newHarness()

	resp := h.run("play", Options{"query": "abc", "start": "1:30"})
	assert.Equal(t, "✅ Added **Song abc** to queue (Position: 1)", resp.Content)
	require.Len(t, h.player.plays, 1)
	assert.Equal(t, "voice-1", h.player.plays[0].VoiceChannelID)
	assert.Equal(t, 96000, h.player.plays[0].Bitrate)
	assert.Equal(t, "text-1", h.player.plays[0].Channel.(*discord.TextChannel).ID())
	assert.Equal(t, []time.Duration{90 * time.Second}, h.resolver.starts)

	song := h.player.CurrentSong()
	assert.Equal(t, "someone", song.RequestedBy)
	assert.Equal(t, 90*time.Second, song.Time.Start())
}

func TestPlayPlaylistEnqueuesEverySong(t *testing.T) {
	h := newHarness()
	h.resolver.playlist = []*common.Song{
		common.NewSong("a", "a", 0),
		common.NewSong("b", "b", 0),
		common.NewSong("c", "c", 0),
	}

	resp := h.run("play", Options{"query": "playlist"})
	assert.Equal(t, "✅ Added **3** songs to the queue", resp.Content)
	assert.Equal(t, []string{"a", "b", "c"}, h.player.queue.Names())
	for _, song := range h.player.Queue() {
		assert.Equal(t, "someone", song.RequestedBy)
	}
}

func TestPlayErrors(t *testing.T) {
	tests := []struct {
		name    string
		options Options
		setup   func(h *harness)
		want    string
	}{
		{
			name:    "missing query",
			options: Options{},
			want:    "Please provide a YouTube URL or search query",
		},
		{
			name:    "bad start",
			options: Options{"query": "abc", "start": "1:75"},
			want:    "invalid start time",
		},
		{
			name:    "not in voice",
			options: Options{"query": "abc"},
			setup:   func(h *harness) { h.env.voiceErr = discord.ErrNotInVoice },
			want:    "You must be in a voice channel",
		},
		{
			name:    "unsupported link",
			options: Options{"query": "abc"},
			setup: func(h *harness) {
				h.resolver.err = &resolver.ResolutionError{Resolver: "none", Reference: "abc", Kind: resolver.ErrUnsupportedReference}
			},
			want: "not supported",
		},
		{
			name:    "voice join failure",
			options: Options{"query": "abc"},
			setup: func(h *harness) {
				h.player.playErr = fmt.Errorf("%w: timeout", player.ErrVoiceJoin)
			},
			want: "Failed to join your voice channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			if tt.setup != nil {
				tt.setup(h)
			}
			assert.Contains(t, h.run("play", tt.options).Content, tt.want)
		})
	}
}

func TestPauseResumeStop(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.run("pause", nil).Content, "Nothing is playing")
	assert.Contains(t, h.run("resume", nil).Content, "Nothing to resume")

	h.run("play", Options{"query": "abc"})
	assert.Contains(t, h.run("resume", nil).Content, "Already playing")

	assert.Contains(t, h.run("pause", nil).Content, "Paused")
	assert.Equal(t, 1, h.player.paused)
	assert.Equal(t, 1, h.player.queue.Len(), "pause keeps the queue")

	assert.Contains(t, h.run("resume", nil).Content, "Resumed")
	assert.Len(t, h.player.plays, 2)

	assert.Contains(t, h.run("stop", nil).Content, "Stopped")
	assert.Equal(t, 0, h.player.queue.Len())
}

func TestSkip(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.run("skip", nil).Content, "Nothing to skip")

	h.player.Enqueue(common.NewSong("a", "a", 0), common.NewSong("b", "b", 0))
	assert.Equal(t, "⏭️ Skipped **a**", h.run("skip", nil).Content)
	assert.Contains(t, h.run("skip", nil).Content, "The queue is empty")
}

func TestQueueRemoveClearShuffle(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.run("queue", nil).Content, "Queue is empty")
	assert.Contains(t, h.run("clear", nil).Content, "already empty")

	h.player.Enqueue(common.NewSong("a", "a", 0))
	assert.Contains(t, h.run("shuffle", nil).Content, "at least 2 songs")

	h.player.Enqueue(common.NewSong("b", "b", 0), common.NewSong("c", "c", 0))
	resp := h.run("queue", nil)
	require.NotNil(t, resp.Embed)
	assert.Contains(t, resp.Embed.Description, "▶️ `1.` a")
	assert.Contains(t, resp.Embed.Description, "`3.` c")
	assert.Equal(t, "3", resp.Embed.Fields[0].Value)
	assert.Equal(t, "queue", resp.Embed.Fields[1].Value)

	assert.Contains(t, h.run("shuffle", nil).Content, "shuffled")
	assert.Equal(t, 1, h.player.shuffled)

	assert.Contains(t, h.run("remove", Options{"position": int64(2)}).Content, "Removed **b**")
	assert.Contains(t, h.run("remove", Options{"position": int64(9)}).Content, "Invalid position")
	assert.Contains(t, h.run("remove", Options{}).Content, "Invalid position")
	assert.Equal(t, []string{"a", "c"}, h.player.queue.Names())

	assert.Contains(t, h.run("clear", nil).Content, "Queue cleared")
	assert.Equal(t, 0, h.player.queue.Len())
}

func TestQueueEmbedPagesAroundCursor(t *testing.T) {
	songs := make([]*common.Song, 30)
	for i := range songs {
		songs[i] = common.NewSong(fmt.Sprintf("song-%d", i+1), "", 0)
	}

	e := queueEmbed(songs, 20, common.PlayModePlaylist, 0.5)
	assert.Contains(t, e.Description, "▶️ `21.` song-21")
	assert.NotContains(t, e.Description, "`15.` ")
	assert.Contains(t, e.Description, "`16.` song-16")
	assert.Contains(t, e.Description, "and 5 more")
	assert.Equal(t, "50%", e.Fields[2].Value)
}

func TestVolumeAndLoop(t *testing.T) {
	h := newHarness()
	assert.Equal(t, "🔊 Volume is 100%", h.run("volume", nil).Content)
	assert.Equal(t, "🔊 Volume set to 40%", h.run("volume", Options{"level": int64(40)}).Content)
	assert.InDelta(t, 0.4, h.player.volume, 1e-9)
	assert.Contains(t, h.run("volume", Options{"level": int64(150)}).Content, "between 0 and 100")

	assert.Contains(t, h.run("loop", nil).Content, "Playlist mode")
	assert.Equal(t, common.PlayModePlaylist, h.player.PlayMode())
	assert.Contains(t, h.run("loop", nil).Content, "Queue mode")
	assert.Contains(t, h.run("loop", Options{"mode": "playlist"}).Content, "Playlist mode")
	assert.Contains(t, h.run("loop", Options{"mode": "forever"}).Content, "Mode must be")
}

func TestNowPlayingAndHistory(t *testing.T) {
	h := newHarness()
	resp := h.run("nowplaying", nil)
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "Nothing is currently playing", resp.Embed.Description)

	h.run("play", Options{"query": "abc"})
	resp = h.run("nowplaying", nil)
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "**[Song abc](abc)**", resp.Embed.Description)

	assert.Contains(t, h.run("history", nil).Content, "Nothing has been played")
	h.history.entries = []*database.HistoryEntry{
		{Name: "a", Outcome: player.OutcomeCompleted, PlayedAt: time.Unix(100, 0), RequestedBy: "someone"},
		{Name: "b", Outcome: player.OutcomeSkipped, PlayedAt: time.Unix(50, 0)},
	}
	resp = h.run("history", nil)
	require.NotNil(t, resp.Embed)
	assert.Contains(t, resp.Embed.Description, "`1.` ✅ a <t:100:R> (Requested by: someone)")
	assert.Contains(t, resp.Embed.Description, "`2.` ⏭️ b <t:50:R>")

	h.music.history = nil
	assert.Contains(t, h.run("history", nil).Content, "disabled")
}

func TestLeaveAndHelp(t *testing.T) {
	h := newHarness()
	h.run("play", Options{"query": "abc"})
	assert.Contains(t, h.run("leave", nil).Content, "Left")
	assert.Equal(t, 1, h.player.left)

	resp := h.run("help", nil)
	require.NotNil(t, resp.Embed)
	for _, def := range Definitions() {
		assert.Contains(t, resp.Embed.Fields[0].Value, "`/"+def.Name+"`")
	}
}

func TestDefinitionsHaveHandlers(t *testing.T) {
	for _, def := range Definitions() {
		_, ok := handlers[def.Name]
		assert.True(t, ok, def.Name)
	}
	assert.Len(t, handlers, len(Definitions()))
}

func TestParseStart(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "90", want: 90 * time.Second},
		{in: "1:30", want: 90 * time.Second},
		{in: "1:02:03", want: time.Hour + 2*time.Minute + 3*time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "1:60", wantErr: true},
		{in: "-5s", wantErr: true},
		{in: "a:b", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStart(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptions(t *testing.T) {
	o := Options{"s": "  text ", "i": int64(3), "f": float64(4), "n": 5, "bad": "x"}
	assert.Equal(t, "text", o.String("s"))
	assert.Equal(t, "", o.String("i"))

	for name, want := range map[string]int64{"i": 3, "f": 4, "n": 5} {
		got, ok := o.Int(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := o.Int("bad")
	assert.False(t, ok)
	_, ok = o.Int("missing")
	assert.False(t, ok)
}

func TestVoiceLookupFailure(t *testing.T) {
	h := newHarness()
	h.player.Enqueue(common.NewSong("a", "a", 0))
	h.env.voiceErr = errors.New("could not find guild")

	assert.Contains(t, h.run("resume", nil).Content, "Could not find your voice channel")
	assert.Contains(t, h.run("skip", nil).Content, "Could not find your voice channel")
	assert.Empty(t, h.player.plays)
}

type fakeLyrics struct {
	queries []string
	err     error
}

func (l *fakeLyrics) Search(_ context.Context, query string) (*lyrics.Result, error) {
	l.queries = append(l.queries, query)
	if l.err != nil {
		return nil, l.err
	}
	return &lyrics.Result{Title: query, Artist: "Artist", Lyrics: "la la la", URL: "https://example.com"}, nil
}

func TestLyrics(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.run("lyrics", nil).Content, "disabled")

	searcher := &fakeLyrics{}
	h.music.WithLyrics(searcher)
	assert.Contains(t, h.run("lyrics", nil).Content, "Nothing is playing")

	h.player.Enqueue(common.NewSong("Seishun Complex (Official Video) [4K]", "ref", time.Minute))
	resp := h.run("lyrics", nil)
	require.NotNil(t, resp.Embed)
	assert.Equal(t, "la la la", resp.Embed.Description)
	assert.Equal(t, "Artist", resp.Embed.Footer.Text)

	h.run("lyrics", Options{"query": "Guitar, Loneliness and Blue Planet"})
	assert.Equal(t, []string{"Seishun Complex", "Guitar, Loneliness and Blue Planet"}, searcher.queries)

	searcher.err = fmt.Errorf("wrapped: %w", lyrics.ErrNotFound)
	assert.Contains(t, h.run("lyrics", nil).Content, "No lyrics found")

	searcher.err = errors.New("network down")
	assert.Contains(t, h.run("lyrics", nil).Content, "failed")
}

func TestSearchTitle(t *testing.T) {
	assert.Equal(t, "Seishun Complex", SearchTitle("Seishun Complex (Official Video)"))
	assert.Equal(t, "Song", SearchTitle("Song 【MV】 [HD]"))
	assert.Equal(t, "(Live)", SearchTitle(" (Live) "))
}
