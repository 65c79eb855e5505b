// Package commands implements the music commands shared by the slash and
// prefix handlers.
package commands

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/database"
	"github.com/latoulicious/Conch/pkg/discord"
	"github.com/latoulicious/Conch/pkg/pipeline"
	"github.com/latoulicious/Conch/pkg/player"
)

// Player is the per guild music player the commands drive
type Player interface {
	Play(ctx context.Context, req player.PlayRequest) error
	Stop()
	Pause()
	Skip(ctx context.Context, req player.PlayRequest) (bool, error)
	Leave()
	Enqueue(songs ...*common.Song) int
	RemoveAt(index int) (*common.Song, error)
	ClearQueue()
	ShuffleQueue()
	Queue() []*common.Song
	Cursor() int
	CurrentSong() *common.Song
	LastSong() *common.Song
	SetVolume(v float64)
	Volume() float64
	SetPlayMode(mode common.PlayMode)
	PlayMode() common.PlayMode
	IsPlaying() bool
}

// SongResolver turns a play query into songs
type SongResolver interface {
	Resolve(ctx context.Context, reference string, start time.Duration) (*common.Song, error)
	IsPlaylist(reference string) bool
	Expand(ctx context.Context, reference string) ([]*common.Song, error)
}

// HistoryReader lists recently played songs
type HistoryReader interface {
	Recent(guildID string, limit int) ([]*database.HistoryEntry, error)
}

// Environment answers the questions about Discord state a command has
type Environment interface {
	UserVoiceChannel(guildID, userID string) (string, error)
	ChannelBitrate(channelID string) int
	TextChannel(channelID string) player.StatusChannel
}

// Request is one command invocation
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
	Options   Options
}

// Options holds the named arguments of a command
type Options map[string]any

// String returns a string option or ""
func (o Options) String(name string) string {
	if v, ok := o[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Int returns an integer option
func (o Options) Int(name string) (int64, bool) {
	switch v := o[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Response is what a command answers with
type Response struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

func text(content string) Response {
	return Response{Content: content}
}

func embed(e *discordgo.MessageEmbed) Response {
	return Response{Embed: e}
}

// Music holds the dependencies of the music commands
type Music struct {
	players  func(guildID string) Player
	resolver SongResolver
	history  HistoryReader
	env      Environment
	lyrics   LyricsSearcher
	logger   pipeline.Logger
}

// NewMusic creates the command set. history may be nil when persistence is
// disabled.
func NewMusic(players func(guildID string) Player, resolver SongResolver, history HistoryReader, env Environment, logger pipeline.Logger) *Music {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Music{
		players:  players,
		resolver: resolver,
		history:  history,
		env:      env,
		logger:   logger.With(pipeline.String("component", "commands")),
	}
}

type handlerFunc func(m *Music, ctx context.Context, req Request) Response

var handlers = map[string]handlerFunc{
	"play":       (*Music).play,
	"resume":     (*Music).resume,
	"stop":       (*Music).stop,
	"pause":      (*Music).pause,
	"skip":       (*Music).skip,
	"queue":      (*Music).queue,
	"remove":     (*Music).remove,
	"clear":      (*Music).clear,
	"shuffle":    (*Music).shuffle,
	"volume":     (*Music).volume,
	"loop":       (*Music).loop,
	"nowplaying": (*Music).nowPlaying,
	"history":    (*Music).recent,
	"lyrics":     (*Music).findLyrics,
	"leave":      (*Music).leave,
	"help":       (*Music).help,
}

// Handle runs the command called name
func (m *Music) Handle(ctx context.Context, name string, req Request) Response {
	h, ok := handlers[name]
	if !ok {
		return text("❌ Unknown command.")
	}
	if req.GuildID == "" {
		return text("❌ Music commands only work in servers.")
	}

	m.logger.Debug("Running command",
		pipeline.String("command", name),
		pipeline.String("guild_id", req.GuildID),
		pipeline.String("user", req.Username),
	)
	return h(m, ctx, req)
}

// playRequest finds the caller's voice channel and builds the request the
// player joins with.
func (m *Music) playRequest(req Request) (player.PlayRequest, error) {
	voiceChannelID, err := m.env.UserVoiceChannel(req.GuildID, req.UserID)
	if err != nil {
		return player.PlayRequest{}, err
	}
	return player.PlayRequest{
		VoiceChannelID: voiceChannelID,
		Channel:        m.env.TextChannel(req.ChannelID),
		Bitrate:        m.env.ChannelBitrate(voiceChannelID),
	}, nil
}

// sessionEnvironment is the Environment of a live discordgo session
type sessionEnvironment struct {
	session  *discordgo.Session
	listener discord.NowPlayingListener
}

// NewSessionEnvironment answers Environment questions from the session
// state. listener is told about now playing messages and may be nil.
func NewSessionEnvironment(session *discordgo.Session, listener discord.NowPlayingListener) Environment {
	return &sessionEnvironment{session: session, listener: listener}
}

func (e *sessionEnvironment) UserVoiceChannel(guildID, userID string) (string, error) {
	return discord.UserVoiceChannel(e.session, guildID, userID)
}

func (e *sessionEnvironment) ChannelBitrate(channelID string) int {
	return discord.ChannelBitrate(e.session, channelID)
}

func (e *sessionEnvironment) TextChannel(channelID string) player.StatusChannel {
	return discord.NewTextChannel(e.session, channelID, e.listener)
}
