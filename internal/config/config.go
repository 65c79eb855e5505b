package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// ErrDiscordTokenNotSet is returned when DISCORD_TOKEN is missing
var ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")

// Config is everything the bot needs at startup
type Config struct {
	DiscordToken string
	Pipeline     *pipeline.PipelineConfig
}

// LoadConfig reads .env, then layers the defaults, an optional YAML file and
// environment overrides. path falls back to CONCH_CONFIG when empty.
func LoadConfig(path string) (*Config, error) {
	// A missing .env file is fine; the variables may come from the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if path == "" {
		path = os.Getenv("CONCH_CONFIG")
	}

	pipelineConfig, err := loadPipelineConfig(path)
	if err != nil {
		return nil, err
	}

	pipelineConfig.LoadFromEnvironment()
	if val := os.Getenv("CONCH_DB_PATH"); val != "" {
		pipelineConfig.Database.Path = val
	}

	if err := pipelineConfig.Validate(); err != nil {
		return nil, err
	}

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}

	return &Config{
		DiscordToken: discordToken,
		Pipeline:     pipelineConfig,
	}, nil
}

func loadPipelineConfig(path string) (*pipeline.PipelineConfig, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(pipeline.DefaultPipelineConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg pipeline.PipelineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
