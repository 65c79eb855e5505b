package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

var minVolume = 0.0

// Definitions returns the application commands of the bot
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Add a song or playlist to the queue and play it",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "YouTube URL, playlist, audio link or search keywords",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "start",
					Description: "Start position, e.g. 1:30 or 90",
					Required:    false,
				},
			},
		},
		{
			Name:        "resume",
			Description: "Resume paused playback",
		},
		{
			Name:        "stop",
			Description: "Stop playback and clear the queue",
		},
		{
			Name:        "pause",
			Description: "Pause the current playback",
		},
		{
			Name:        "skip",
			Description: "Skip the current song",
		},
		{
			Name:        "queue",
			Description: "Show the current queue",
		},
		{
			Name:        "remove",
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "position",
					Description: "Position of the song to remove (1-based)",
					Required:    true,
				},
			},
		},
		{
			Name:        "clear",
			Description: "Clear the entire queue",
		},
		{
			Name:        "shuffle",
			Description: "Shuffle the queue",
		},
		{
			Name:        "volume",
			Description: "Show or set the volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "Volume from 0 to 100",
					Required:    false,
					MinValue:    &minVolume,
					MaxValue:    100,
				},
			},
		},
		{
			Name:        "loop",
			Description: "Switch between queue and playlist mode",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "queue removes finished songs, playlist loops them",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "queue", Value: "queue"},
						{Name: "playlist", Value: "playlist"},
					},
				},
			},
		},
		{
			Name:        "nowplaying",
			Description: "Show what's currently playing",
		},
		{
			Name:        "history",
			Description: "Show recently played songs",
		},
		{
			Name:        "lyrics",
			Description: "Show the lyrics of the current song or a search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Song to search instead of the current one",
					Required:    false,
				},
			},
		},
		{
			Name:        "leave",
			Description: "Stop playback and leave the voice channel",
		},
		{
			Name:        "help",
			Description: "Show help information",
		},
	}
}

// RegisterSlashCommands registers all slash commands globally
func RegisterSlashCommands(s *discordgo.Session, logger pipeline.Logger) error {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger.Info("Registering global slash commands")

	for _, cmd := range Definitions() {
		_, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd)
		if err != nil {
			logger.Error("Error creating command", pipeline.String("command", cmd.Name), pipeline.Error(err))
			return err
		}
		logger.Debug("Registered command", pipeline.String("command", cmd.Name))
	}

	logger.Info("All slash commands registered", pipeline.Int("count", len(Definitions())))
	return nil
}

// DeleteAllSlashCommands deletes all global slash commands
func DeleteAllSlashCommands(s *discordgo.Session, logger pipeline.Logger) error {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger.Info("Deleting all global slash commands")

	commands, err := s.ApplicationCommands(s.State.User.ID, "")
	if err != nil {
		logger.Error("Error fetching commands", pipeline.Error(err))
		return err
	}

	for _, cmd := range commands {
		if err := s.ApplicationCommandDelete(s.State.User.ID, "", cmd.ID); err != nil {
			logger.Error("Error deleting command", pipeline.String("command", cmd.Name), pipeline.Error(err))
			return err
		}
		logger.Debug("Deleted command", pipeline.String("command", cmd.Name))
	}

	logger.Info("All slash commands deleted", pipeline.Int("count", len(commands)))
	return nil
}
