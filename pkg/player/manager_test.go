package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

func TestManagerKeepsOnePlayerPerGuild(t *testing.T) {
	engines := make(map[string]*fakeEngine)
	m := NewManager(Dependencies{Voice: &fakeConnector{}}, func(guildID string) Engine {
		e := newFakeEngine()
		engines[guildID] = e
		return e
	})

	a := m.GetOrCreate("a")
	assert.Same(t, a, m.GetOrCreate("a"))
	assert.NotSame(t, a, m.GetOrCreate("b"))
	assert.Len(t, engines, 2)

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestManagerResumeAllAndShutdown(t *testing.T) {
	voice := &fakeConnector{}
	engine := newFakeEngine()
	m := NewManager(Dependencies{Voice: voice, Resolver: &fakeResolver{}}, func(string) Engine { return engine })

	c := m.GetOrCreate("guild-1")
	c.Enqueue(common.NewSong("A", "https://example.com/A", time.Minute))
	req := PlayRequest{VoiceChannelID: "voice-1", Channel: &fakeStatus{}}
	require.NoError(t, c.Play(context.Background(), req))

	c.Pause()
	m.ResumeAll(context.Background())
	assert.Equal(t, []string{"A", "A"}, engine.playedNames())

	m.Shutdown()
	assert.False(t, c.IsPlaying())
	assert.Equal(t, 1, voice.leaveCount())
	assert.Len(t, c.Queue(), 1, "shutdown keeps the queue")
}

func TestPipelineEnginesBuildsIdleEngines(t *testing.T) {
	factory := PipelineEngines(pipeline.DefaultPipelineConfig(), nil, pipeline.NullLogger(), nil)

	e := factory("guild-1")
	assert.False(t, e.IsPlaying())
	assert.Equal(t, 1.0, e.Volume())
}
