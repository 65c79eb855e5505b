package database

import (
	"time"
)

// DatabaseConfig holds configuration for the database manager
type DatabaseConfig struct {
	// Connection settings
	DatabasePath      string        `json:"database_path" yaml:"database_path"`
	MaxConnections    int           `json:"max_connections" yaml:"max_connections"`
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`

	// Performance settings
	WALMode         bool   `json:"wal_mode" yaml:"wal_mode"`
	SynchronousMode string `json:"synchronous_mode" yaml:"synchronous_mode"`
	CacheSize       int    `json:"cache_size" yaml:"cache_size"`

	// HistoryRetention bounds how many plays are kept per guild; 0 keeps all
	HistoryRetention int `json:"history_retention" yaml:"history_retention"`
}

// DefaultDatabaseConfig returns a configuration with sensible defaults
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		DatabasePath:      "conch.db",
		MaxConnections:    4,
		ConnectionTimeout: 30 * time.Second,

		WALMode:         true,
		SynchronousMode: "NORMAL",
		CacheSize:       -16000, // 16MB

		HistoryRetention: 500,
	}
}

// ConfigForPath returns the defaults pointed at path
func ConfigForPath(path string) *DatabaseConfig {
	config := DefaultDatabaseConfig()
	config.DatabasePath = path
	return config
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConnectionTimeout
	}
	if c.SynchronousMode != "OFF" && c.SynchronousMode != "NORMAL" && c.SynchronousMode != "FULL" {
		return ErrInvalidSynchronousMode
	}
	return nil
}

// HistoryEntry is one finished play attempt
type HistoryEntry struct {
	ID          int64     `json:"id"`
	GuildID     string    `json:"guild_id"`
	Name        string    `json:"name"`
	Reference   string    `json:"reference"`
	Author      string    `json:"author,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Outcome     string    `json:"outcome"`
	PlayedAt    time.Time `json:"played_at"`
}

// Migration represents an applied schema migration
type Migration struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Checksum    string    `json:"checksum"`
	AppliedAt   time.Time `json:"applied_at"`
}

// DatabaseStats holds statistics about the database
type DatabaseStats struct {
	SchemaVersion int   `json:"schema_version"`
	GuildSettings int64 `json:"guild_settings"`
	HistoryRows   int64 `json:"history_rows"`
	FileSize      int64 `json:"file_size"`
}
