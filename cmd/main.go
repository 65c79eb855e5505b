package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/latoulicious/Conch/internal/commands"
	"github.com/latoulicious/Conch/internal/config"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "conch",
		Short:         "Discord voice channel music bot",
		Version:       appVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (defaults to $CONCH_CONFIG)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		slashCmd(flags, "register", "Register the global slash commands", commands.RegisterSlashCommands),
		slashCmd(flags, "unregister", "Delete all global slash commands", commands.DeleteAllSlashCommands),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "conch: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every subcommand uses
func setup(flags *rootFlags) (*config.Config, pipeline.Logger, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Pipeline.Logging.Level = flags.logLevel
	}

	logger := pipeline.NewStructuredLogger(cfg.Pipeline.Logging)
	pipeline.NewStdLogAdapter(logger).SetAsStdLogger()
	return cfg, logger, nil
}

// slashCmd opens a short lived session to manage application commands
func slashCmd(flags *rootFlags, use, short string, action func(*discordgo.Session, pipeline.Logger) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}

			dg, err := discordgo.New("Bot " + cfg.DiscordToken)
			if err != nil {
				return fmt.Errorf("failed to create Discord session: %w", err)
			}
			if err := dg.Open(); err != nil {
				return fmt.Errorf("failed to open Discord session: %w", err)
			}
			defer dg.Close()

			return action(dg, logger)
		},
	}
}

func appVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "unknown"
	}
	return bi.Main.Version
}
