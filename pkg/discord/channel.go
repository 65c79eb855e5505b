package discord

import (
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/common"
)

// Embed colors
const (
	ColorPlaying = 0x00ff00
	ColorIdle    = 0x808080
	ColorInfo    = 0x0099ff
	ColorError   = 0xff0000
)

const footerText = "Conch"

// Messenger is the part of a discordgo session that posts messages
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// NowPlayingListener is told which song a guild started or stopped
type NowPlayingListener interface {
	SongStarted(song *common.Song)
	SongStopped()
}

// TextChannel is a guild text channel showing the now playing message
type TextChannel struct {
	messenger Messenger
	channelID string
	listener  NowPlayingListener
}

// NewTextChannel creates a channel; listener may be nil
func NewTextChannel(messenger Messenger, channelID string, listener NowPlayingListener) *TextChannel {
	return &TextChannel{messenger: messenger, channelID: channelID, listener: listener}
}

// ID returns the channel ID
func (c *TextChannel) ID() string {
	return c.channelID
}

func (c *TextChannel) SendText(text string) error {
	_, err := c.messenger.ChannelMessageSend(c.channelID, text)
	return err
}

func (c *TextChannel) SendStatus(song *common.Song, volume float64) (string, error) {
	msg, err := c.messenger.ChannelMessageSendEmbed(c.channelID, SongEmbed(song, volume))
	if err != nil {
		return "", err
	}
	if c.listener != nil {
		c.listener.SongStarted(song)
	}
	return msg.ID, nil
}

func (c *TextChannel) EditStatus(messageID string, song *common.Song, volume float64) error {
	_, err := c.messenger.ChannelMessageEditEmbed(c.channelID, messageID, SongEmbed(song, volume))
	if err == nil && c.listener != nil {
		c.listener.SongStarted(song)
	}
	return err
}

func (c *TextChannel) DeleteMessage(messageID string) error {
	if c.listener != nil {
		c.listener.SongStopped()
	}
	return c.messenger.ChannelMessageDelete(c.channelID, messageID)
}

// SongEmbed renders the now playing message
func SongEmbed(song *common.Song, volume float64) *discordgo.MessageEmbed {
	description := fmt.Sprintf("**%s**", song.Name)
	if song.Reference != "" {
		description = fmt.Sprintf("**[%s](%s)**", song.Name, song.Reference)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: description,
		Color:       ColorPlaying,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Progress",
				Value:  song.FormatProgress(),
				Inline: true,
			},
			{
				Name:   "Volume",
				Value:  FormatVolume(volume),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
	}

	if song.Author != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Author",
			Value:  song.Author,
			Inline: true,
		})
	}
	if song.RequestedBy != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Requested by",
			Value:  song.RequestedBy,
			Inline: true,
		})
	}
	if song.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: song.ThumbnailURL}
	}
	return embed
}

// NothingPlayingEmbed is shown when a guild has no current song
func NothingPlayingEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: "Nothing is currently playing",
		Color:       ColorIdle,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Use /play to start playing music",
		},
	}
}

// FormatVolume renders a [0, 1] volume as a percentage
func FormatVolume(volume float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(volume*100)))
}
