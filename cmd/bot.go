package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Conch/internal/commands"
	"github.com/latoulicious/Conch/internal/handlers"
	"github.com/latoulicious/Conch/internal/presence"
	"github.com/latoulicious/Conch/pkg/cron"
	"github.com/latoulicious/Conch/pkg/database"
	"github.com/latoulicious/Conch/pkg/discord"
	"github.com/latoulicious/Conch/pkg/lyrics"
	"github.com/latoulicious/Conch/pkg/pipeline"
	"github.com/latoulicious/Conch/pkg/player"
	"github.com/latoulicious/Conch/pkg/resolver"
	"github.com/latoulicious/Conch/pkg/supervisor"
)

// runBot connects to Discord and serves music commands until interrupted
func runBot(parent context.Context, flags *rootFlags) error {
	cfg, logger, err := setup(flags)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := pipeline.NewBasicMetricsCollector(logger)
	scheduler := cron.NewScheduler(logger)
	maintenance := cfg.Pipeline.Maintenance

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	// Settings and history stay nil interfaces when persistence is off
	var (
		settings      player.SettingsStore
		historyWriter player.HistoryRecorder
		historyReader commands.HistoryReader
	)
	if cfg.Pipeline.Database.Enabled {
		db, err := database.NewDatabaseManager(database.ConfigForPath(cfg.Pipeline.Database.Path), logger)
		if err != nil {
			return fmt.Errorf("invalid database config: %w", err)
		}
		if err := db.Connect(); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Error closing database", pipeline.Error(err))
			}
		}()

		if maintenance.Enabled {
			job := cron.DatabaseMaintenance(db, maintenance.BackupDir, logger)
			if err := scheduler.Add("database", maintenance.Schedule, job); err != nil {
				return err
			}
		}

		settings = db.SettingsRepository()
		history := db.HistoryRepository()
		historyWriter = history
		historyReader = history
	}

	if maintenance.Enabled && maintenance.MetricsReports {
		if err := scheduler.Add("metrics", maintenance.Schedule, cron.MetricsReport(metrics, logger)); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	songs := resolver.NewDefaultPipeline(cfg.Pipeline.Resolver, logger)
	decoder := pipeline.NewFFmpegDecoder(cfg.Pipeline.FFmpeg, cfg.Pipeline.Opus, logger)

	manager := player.NewManager(player.Dependencies{
		Config:   cfg.Pipeline,
		Resolver: songs,
		Voice:    discord.NewVoiceConnector(dg, cfg.Pipeline, logger),
		Settings: settings,
		History:  historyWriter,
		Logger:   logger,
		Metrics:  metrics,
	}, player.PipelineEngines(cfg.Pipeline, decoder, logger, metrics))

	presenceManager := presence.NewPresenceManager(dg, dg.State, logger)

	music := commands.NewMusic(
		func(guildID string) commands.Player { return manager.GetOrCreate(guildID) },
		songs,
		historyReader,
		commands.NewSessionEnvironment(dg, presenceManager),
		logger,
	)
	if cfg.Pipeline.Lyrics.Enabled {
		music.WithLyrics(lyrics.NewScraper(cfg.Pipeline.Lyrics.BaseURL, logger))
	}
	dg.AddHandler(handlers.NewSlashHandler(music, logger).Handle)
	dg.AddHandler(handlers.NewMessageHandler(music, logger).Handle)

	gateway := discord.NewGateway(dg, logger)
	sup := supervisor.New(gateway, manager, cfg.Pipeline.Supervisor, logger, metrics)

	dg.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		if gateway.ShuttingDown() {
			return
		}
		go func() {
			if err := sup.Recover(ctx, gateway.DisconnectCause()); err != nil {
				logger.Info("Reconnect abandoned", pipeline.Error(err))
			}
		}()
	})

	var registerOnce sync.Once
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		registerOnce.Do(func() {
			if err := commands.RegisterSlashCommands(s, logger); err != nil {
				logger.Error("Error registering slash commands", pipeline.Error(err))
			}
		})
		presenceManager.UpdateDefaultPresence()
		sup.HandleReady(ctx)
	})

	if err := gateway.Login(ctx); err != nil {
		return err
	}
	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	presenceManager.StartPeriodicUpdates(ctx, 0)

	logger.Info("Bot is running. Press CTRL-C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down")
	manager.Shutdown()
	if err := gateway.Shutdown(); err != nil {
		logger.Warn("Error closing Discord session", pipeline.Error(err))
	}
	return nil
}
