// Package discord adapts a discordgo session to the player: voice
// connections and audio sinks, text channels with a now playing message,
// and a restartable gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// ErrNotInVoice is returned when the requesting user is not in a voice channel
var ErrNotInVoice = errors.New("you must be in a voice channel to play music")

// UserVoiceChannel finds the voice channel a user is connected to
func UserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("could not find guild: %w", err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", ErrNotInVoice
}

// ChannelBitrate returns the bitrate of a voice channel, or 0 when unknown
func ChannelBitrate(s *discordgo.Session, channelID string) int {
	channel, err := s.State.Channel(channelID)
	if err != nil {
		return 0
	}
	return channel.Bitrate
}

// VoiceConnector joins and leaves voice channels on a session
type VoiceConnector struct {
	session *discordgo.Session
	voice   pipeline.VoiceConfig
	opus    pipeline.OpusConfig
	logger  pipeline.Logger
}

// NewVoiceConnector creates a connector for session
func NewVoiceConnector(session *discordgo.Session, config *pipeline.PipelineConfig, logger pipeline.Logger) *VoiceConnector {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &VoiceConnector{
		session: session,
		voice:   config.Voice,
		opus:    config.Opus,
		logger:  logger.With(pipeline.String("component", "voice")),
	}
}

// Join connects to a voice channel, retrying failed attempts, and waits
// until the connection is ready. An existing ready connection to the same
// channel is reused.
func (c *VoiceConnector) Join(ctx context.Context, guildID, channelID string) (pipeline.VoiceClient, error) {
	if vc := c.existing(guildID); vc != nil && vc.ChannelID == channelID && isReady(vc) {
		return c.client(vc), nil
	}

	channelName := "Unknown"
	if channel, err := c.session.State.Channel(channelID); err == nil {
		channelName = channel.Name
	}
	c.logger.Info("Joining voice channel",
		pipeline.String("channel", channelName),
		pipeline.String("channel_id", channelID),
		pipeline.String("guild_id", guildID),
	)

	retries := max(c.voice.JoinRetries, 1)
	var (
		vc  *discordgo.VoiceConnection
		err error
	)
	for i := 0; i < retries; i++ {
		vc, err = c.session.ChannelVoiceJoin(guildID, channelID, false, true)
		if err == nil {
			break
		}

		c.logger.Warn("Voice join attempt failed",
			pipeline.Int("attempt", i+1),
			pipeline.Int("max_attempts", retries),
			pipeline.Error(err),
		)
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * c.voice.JoinRetryDelay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", retries, err)
	}

	if err := waitReady(ctx, vc, c.voice.ReadyTimeout); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}

	c.logger.Info("Voice connection ready", pipeline.String("guild_id", guildID))
	return c.client(vc), nil
}

// Leave disconnects from the voice channel of a guild
func (c *VoiceConnector) Leave(guildID string) error {
	vc := c.existing(guildID)
	if vc == nil {
		c.logger.Debug("No voice connection to leave", pipeline.String("guild_id", guildID))
		return nil
	}

	if err := vc.Disconnect(); err != nil {
		return err
	}
	c.logger.Info("Disconnected from voice channel", pipeline.String("guild_id", guildID))
	return nil
}

func (c *VoiceConnector) existing(guildID string) *discordgo.VoiceConnection {
	c.session.RLock()
	defer c.session.RUnlock()
	return c.session.VoiceConnections[guildID]
}

func (c *VoiceConnector) client(vc *discordgo.VoiceConnection) *VoiceClient {
	return &VoiceClient{conn: vc, voice: c.voice, opus: c.opus, logger: c.logger}
}

func isReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if isReady(vc) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errors.New("voice connection timed out")
		case <-ticker.C:
		}
	}
}

// VoiceClient is a joined voice connection
type VoiceClient struct {
	conn   *discordgo.VoiceConnection
	voice  pipeline.VoiceConfig
	opus   pipeline.OpusConfig
	logger pipeline.Logger
}

func (v *VoiceClient) IsConnected() bool {
	return isReady(v.conn)
}

// RawAudioStream encodes s16le PCM to Opus at bitrate
func (v *VoiceClient) RawAudioStream(bitrate int) (pipeline.AudioSink, error) {
	encoder, err := NewOpusEncoder(v.opus, bitrate)
	if err != nil {
		return nil, err
	}
	return NewPCMSink(v.output(), encoder, v.opus, v.voice.SendTimeout, v.logger), nil
}

// CompressedAudioStream demuxes an Ogg/Opus stream into Opus packets
func (v *VoiceClient) CompressedAudioStream() (pipeline.AudioSink, error) {
	return NewOggSink(v.output(), v.voice.SendTimeout, v.logger), nil
}

func (v *VoiceClient) output() FrameOutput {
	return FrameOutput{
		Frames:   v.conn.OpusSend,
		Ready:    v.IsConnected,
		Speaking: v.conn.Speaking,
	}
}
