package database

import (
	"context"

	"github.com/latoulicious/Conch/pkg/common"
)

// DatabaseManager owns the sqlite connection and the repositories on top of it
type DatabaseManager interface {
	// Connection management
	Connect() error
	Close() error
	Ping(ctx context.Context) error

	// Repository access
	SettingsRepository() SettingsRepository
	HistoryRepository() HistoryRepository

	// Schema management
	Migrate() error
	GetSchemaVersion() (int, error)

	// Maintenance
	GetStats() (*DatabaseStats, error)
	Backup(path string) error
}

// SettingsRepository stores per guild playback preferences
type SettingsRepository interface {
	// GetSettings returns nil and no error for a guild without stored settings
	GetSettings(guildID string) (*common.GuildSettings, error)
	SaveSettings(settings *common.GuildSettings) error
	DeleteSettings(guildID string) error
}

// HistoryRepository stores finished play attempts
type HistoryRepository interface {
	RecordPlay(guildID string, song *common.Song, outcome string) error
	Recent(guildID string, limit int) ([]*HistoryEntry, error)
	Prune(guildID string, keep int) (int64, error)
}

// MigrationManager handles schema versioning
type MigrationManager interface {
	GetCurrentVersion() (int, error)
	GetLatestVersion() int
	Migrate() error
	Rollback() error
	GetMigrationHistory() ([]*Migration, error)
}
