package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	writes  int
	flushed bool
	closed  bool
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.buf.Write(p)
}

func (s *fakeSink) CanWrite() bool { return true }

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

type fakeVoice struct {
	connected  bool
	raw        *fakeSink
	compressed *fakeSink
	bitrate    int
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{connected: true, raw: &fakeSink{}, compressed: &fakeSink{}}
}

func (v *fakeVoice) IsConnected() bool { return v.connected }

func (v *fakeVoice) RawAudioStream(bitrate int) (AudioSink, error) {
	v.bitrate = bitrate
	return v.raw, nil
}

func (v *fakeVoice) CompressedAudioStream() (AudioSink, error) {
	return v.compressed, nil
}

type fakeChannel struct {
	mu    sync.Mutex
	texts []string
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

// fakeProcess returns data, then either EOF forever or blocks until terminated
type fakeProcess struct {
	data       *bytes.Reader
	block      bool
	reads      atomic.Int32
	terminated chan struct{}
	termOnce   sync.Once
	closed     atomic.Bool
}

func newFakeProcess(data []byte, block bool) *fakeProcess {
	return &fakeProcess{
		data:       bytes.NewReader(data),
		block:      block,
		terminated: make(chan struct{}),
	}
}

func (p *fakeProcess) Read(b []byte) (int, error) {
	p.reads.Add(1)
	if p.data.Len() > 0 {
		return p.data.Read(b)
	}
	if p.block {
		<-p.terminated
	}
	return 0, io.EOF
}

func (p *fakeProcess) Terminate() error {
	p.termOnce.Do(func() { close(p.terminated) })
	return nil
}

func (p *fakeProcess) Close() error {
	p.closed.Store(true)
	return p.Terminate()
}

type fakeDecoder struct {
	proc *fakeProcess
	err  error
	reqs []DecodeRequest
}

func (d *fakeDecoder) Start(_ context.Context, req DecodeRequest) (DecoderProcess, error) {
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return nil, d.err
	}
	return d.proc, nil
}

func testConfig() *PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.Stream.StallDelay = time.Millisecond
	return cfg
}

func resolvedSong(length time.Duration) *common.Song {
	return common.NewSong("test", "https://example.com/watch", length).
		WithLocators("https://cdn.example.com/audio", "")
}

func frames(n, size int) []byte {
	return make([]byte, n*size)
}

func waitEvent(t *testing.T, events <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-events:
		return ev, ok
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine event")
		return Event{}, false
	}
}

func TestPlayWithoutVoiceConnection(t *testing.T) {
	decoder := &fakeDecoder{proc: newFakeProcess(nil, false)}
	engine := NewEngine(testConfig(), decoder, NullLogger(), nil)
	voice := newFakeVoice()
	voice.connected = false

	events, err := engine.Play(context.Background(), voice, nil, resolvedSong(time.Minute), 64000)

	assert.NoError(t, err)
	assert.Nil(t, events)
	assert.Empty(t, decoder.reqs)
	assert.Equal(t, StateIdle, engine.State())
}

func TestEOFNearEndCompletes(t *testing.T) {
	proc := newFakeProcess(frames(1, 3840), false)
	collector := NewBasicMetricsCollector(NullLogger())
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), collector)
	voice := newFakeVoice()
	song := resolvedSong(time.Second)

	events, err := engine.Play(context.Background(), voice, nil, song, 64000)
	require.NoError(t, err)
	require.NotNil(t, events)

	ev, ok := waitEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Same(t, song, ev.Song)
	assert.Equal(t, 64000, ev.Bitrate)
	assert.Equal(t, 64000, voice.bitrate)

	_, ok = waitEvent(t, events)
	assert.False(t, ok, "channel must close after the terminal event")

	assert.Equal(t, 3840, len(voice.raw.Bytes()))
	assert.True(t, voice.raw.closed)
	assert.True(t, voice.raw.flushed)
	assert.True(t, proc.closed.Load())
	assert.Equal(t, 20*time.Millisecond, song.Time.Current())
	assert.Equal(t, StateIdle, engine.State())
	assert.False(t, engine.IsPlaying())
	assert.Equal(t, 0.0, collector.SumCounter("playback.stream.stalls"))
}

func TestUnknownLengthCompletesOnEOF(t *testing.T) {
	proc := newFakeProcess(frames(3, 3840), false)
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), nil)

	events, err := engine.Play(context.Background(), newFakeVoice(), nil, resolvedSong(0), 0)
	require.NoError(t, err)

	ev, ok := waitEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, DefaultPipelineConfig().Voice.DefaultBitrate, ev.Bitrate)
}

func TestStallFailsAfterMaxRetries(t *testing.T) {
	proc := newFakeProcess(nil, false)
	collector := NewBasicMetricsCollector(NullLogger())
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), collector)

	events, err := engine.Play(context.Background(), newFakeVoice(), nil, resolvedSong(10*time.Second), 64000)
	require.NoError(t, err)

	ev, ok := waitEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrStreamStall)

	var playbackErr *PlaybackError
	require.ErrorAs(t, ev.Err, &playbackErr)
	assert.Equal(t, CategoryStream, playbackErr.Category)

	assert.Equal(t, int32(50), proc.reads.Load())
	assert.Equal(t, 50.0, collector.SumCounter("playback.stream.stalls"))
	assert.Equal(t, StateErrored, engine.State())
}

func TestStopOnIdleEngineIsNoop(t *testing.T) {
	engine := NewEngine(testConfig(), &fakeDecoder{}, NullLogger(), nil)

	engine.Stop()
	engine.Pause()

	assert.Equal(t, StateIdle, engine.State())
	assert.False(t, engine.IsPlaying())
}

func TestStopClosesChannelWithoutEvent(t *testing.T) {
	proc := newFakeProcess(frames(5, 3840), true)
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), nil)
	voice := newFakeVoice()
	song := resolvedSong(time.Minute).WithStart(10 * time.Second)

	events, err := engine.Play(context.Background(), voice, nil, song, 64000)
	require.NoError(t, err)
	assert.True(t, engine.IsPlaying())
	assert.Equal(t, StateStreaming, engine.State())

	assert.Eventually(t, func() bool { return voice.raw.Writes() == 5 }, 2*time.Second, 5*time.Millisecond)

	engine.Stop()

	_, ok := waitEvent(t, events)
	assert.False(t, ok)
	assert.Equal(t, StateStopped, engine.State())
	assert.Equal(t, time.Duration(0), song.Time.Start())
	assert.Equal(t, time.Duration(0), song.Time.Current())
	assert.True(t, proc.closed.Load())

	engine.Stop()
	assert.Equal(t, StateStopped, engine.State())
}

func TestPauseKeepsResumePoint(t *testing.T) {
	proc := newFakeProcess(frames(5, 3840), true)
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), nil)
	voice := newFakeVoice()
	song := resolvedSong(time.Minute)

	events, err := engine.Play(context.Background(), voice, nil, song, 64000)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return voice.raw.Writes() == 5 }, 2*time.Second, 5*time.Millisecond)

	engine.Pause()

	_, ok := waitEvent(t, events)
	assert.False(t, ok)
	assert.Equal(t, StatePaused, engine.State())
	assert.Equal(t, 100*time.Millisecond, song.Time.Start())
}

func TestParentContextCancellationStops(t *testing.T) {
	proc := newFakeProcess(nil, true)
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := engine.Play(ctx, newFakeVoice(), nil, resolvedSong(time.Minute), 64000)
	require.NoError(t, err)

	cancel()

	_, ok := waitEvent(t, events)
	assert.False(t, ok)
	assert.Equal(t, StateStopped, engine.State())
}

func TestPlayWhileBusy(t *testing.T) {
	proc := newFakeProcess(nil, true)
	engine := NewEngine(testConfig(), &fakeDecoder{proc: proc}, NullLogger(), nil)

	_, err := engine.Play(context.Background(), newFakeVoice(), nil, resolvedSong(time.Minute), 64000)
	require.NoError(t, err)

	_, err = engine.Play(context.Background(), newFakeVoice(), nil, resolvedSong(time.Minute), 64000)
	assert.ErrorIs(t, err, ErrEngineBusy)

	engine.Stop()
}

func TestUnresolvedSongCompletesWithoutStreaming(t *testing.T) {
	decoder := &fakeDecoder{proc: newFakeProcess(nil, false)}
	engine := NewEngine(testConfig(), decoder, NullLogger(), nil)
	channel := &fakeChannel{}
	song := common.NewSong("unresolved", "ref", time.Minute)

	events, err := engine.Play(context.Background(), newFakeVoice(), channel, song, 64000)
	require.NoError(t, err)

	ev, ok := waitEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Empty(t, decoder.reqs)
	assert.Len(t, channel.texts, 1)
	assert.Equal(t, StateIdle, engine.State())
}

func TestDecoderStartError(t *testing.T) {
	decoder := &fakeDecoder{err: errors.New("exec: \"ffmpeg\": executable file not found")}
	engine := NewEngine(testConfig(), decoder, NullLogger(), nil)

	events, err := engine.Play(context.Background(), newFakeVoice(), nil, resolvedSong(time.Minute), 64000)

	assert.Nil(t, events)
	var startErr *DecoderStartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "https://cdn.example.com/audio", startErr.Locator)
	assert.Equal(t, StateErrored, engine.State())
	assert.False(t, engine.IsPlaying())
}

func TestDecodeRequestCarriesStartAndLocator(t *testing.T) {
	decoder := &fakeDecoder{proc: newFakeProcess(nil, false)}
	engine := NewEngine(testConfig(), decoder, NullLogger(), nil)
	song := resolvedSong(0).WithStart(30 * time.Second)

	events, err := engine.Play(context.Background(), newFakeVoice(), nil, song, 96000)
	require.NoError(t, err)
	waitEvent(t, events)

	require.Len(t, decoder.reqs, 1)
	assert.Equal(t, 30*time.Second, decoder.reqs[0].Start)
	assert.Equal(t, "https://cdn.example.com/audio", decoder.reqs[0].Locator)
	assert.False(t, decoder.reqs[0].Compressed)
}

func TestCompressedPathUsesCompressedSink(t *testing.T) {
	payload := bytes.Repeat([]byte{0x10, 0x20}, 750)
	decoder := &fakeDecoder{proc: newFakeProcess(payload, false)}
	engine := NewEngine(testConfig(), decoder, NullLogger(), nil)
	engine.SetVolume(0.5)
	voice := newFakeVoice()
	song := common.NewSong("opus", "ref", 0).WithLocators("https://cdn/a.webm", "https://cdn/a.opus")

	events, err := engine.Play(context.Background(), voice, nil, song, 96000)
	require.NoError(t, err)
	ev, _ := waitEvent(t, events)

	assert.Equal(t, EventCompleted, ev.Kind)
	require.Len(t, decoder.reqs, 1)
	assert.True(t, decoder.reqs[0].Compressed)
	assert.Equal(t, "https://cdn/a.opus", decoder.reqs[0].Locator)
	assert.Equal(t, 96000, decoder.reqs[0].Bitrate)
	assert.Equal(t, 0.5, decoder.reqs[0].Volume)
	assert.Equal(t, payload, voice.compressed.Bytes())
	assert.Empty(t, voice.raw.Bytes())
}

func TestVolumeAppliedToRawFrames(t *testing.T) {
	frame := make([]byte, 3840)
	binary.LittleEndian.PutUint16(frame[0:], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(frame[2:], uint16(int16(-1000)))

	voice := newFakeVoice()
	engine := NewEngine(testConfig(), &fakeDecoder{proc: newFakeProcess(frame, false)}, NullLogger(), nil)
	engine.SetVolume(0.5)

	events, err := engine.Play(context.Background(), voice, nil, resolvedSong(0), 64000)
	require.NoError(t, err)
	waitEvent(t, events)

	out := voice.raw.Bytes()
	require.Len(t, out, 3840)
	assert.Equal(t, int16(500), int16(binary.LittleEndian.Uint16(out[0:])))
	assert.Equal(t, int16(-500), int16(binary.LittleEndian.Uint16(out[2:])))
}

func TestSetVolumeClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: -5, want: 0},
		{in: 5, want: 1},
		{in: 0.25, want: 0.25},
		{in: 0, want: 0},
		{in: 1, want: 1},
	}

	engine := NewEngine(testConfig(), &fakeDecoder{}, NullLogger(), nil)
	for _, tt := range tests {
		engine.SetVolume(tt.in)
		assert.Equal(t, tt.want, engine.Volume(), "SetVolume(%v)", tt.in)
	}
}

func TestApplyVolumeScalesSamples(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(32767)))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(int16(-32768)))

	applyVolume(pcm, 0)

	assert.Equal(t, []byte{0, 0, 0, 0}, pcm)
}
