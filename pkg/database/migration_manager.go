package database

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// migrationManager implements the MigrationManager interface
type migrationManager struct {
	db         *sql.DB
	migrations map[int]*migrationScript
	logger     pipeline.Logger
}

// migrationScript represents a single database migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
	DownSQL     string
	Checksum    string
}

// NewMigrationManager creates a migration manager and its tracking table
func NewMigrationManager(db *sql.DB, logger pipeline.Logger) (MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	mm := &migrationManager{
		db:         db,
		migrations: make(map[int]*migrationScript),
		logger:     logger,
	}

	if err := mm.initializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	mm.loadMigrations()
	return mm, nil
}

// initializeMigrationTable creates the migration tracking table
func (mm *migrationManager) initializeMigrationTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)
	`

	if _, err := mm.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func (mm *migrationManager) loadMigrations() {
	mm.migrations[1] = &migrationScript{
		Version:     1,
		Name:        "guild_settings",
		Description: "Create per guild volume and play mode table",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS guild_settings (
				guild_id TEXT PRIMARY KEY,
				volume REAL NOT NULL DEFAULT 1.0,
				play_mode TEXT NOT NULL DEFAULT 'queue',
				updated_at DATETIME NOT NULL
			);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS guild_settings;
		`,
	}

	mm.migrations[2] = &migrationScript{
		Version:     2,
		Name:        "play_history",
		Description: "Create play history table",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS play_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				guild_id TEXT NOT NULL,
				name TEXT NOT NULL,
				reference TEXT NOT NULL,
				author TEXT,
				requested_by TEXT,
				outcome TEXT NOT NULL,
				played_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history(guild_id, played_at);
		`,
		DownSQL: `
			DROP INDEX IF EXISTS idx_play_history_guild;
			DROP TABLE IF EXISTS play_history;
		`,
	}

	for _, migration := range mm.migrations {
		migration.Checksum = mm.calculateChecksum(migration.UpSQL)
	}
}

// GetCurrentVersion returns the current schema version
func (mm *migrationManager) GetCurrentVersion() (int, error) {
	var version int
	err := mm.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// GetLatestVersion returns the latest available migration version
func (mm *migrationManager) GetLatestVersion() int {
	maxVersion := 0
	for version := range mm.migrations {
		maxVersion = max(maxVersion, version)
	}
	return maxVersion
}

// Migrate runs all pending migrations
func (mm *migrationManager) Migrate() error {
	currentVersion, err := mm.GetCurrentVersion()
	if err != nil {
		return err
	}

	latestVersion := mm.GetLatestVersion()
	if currentVersion >= latestVersion {
		mm.logger.Debug("Database is up to date", pipeline.Int("version", currentVersion))
		return nil
	}

	mm.logger.Info("Migrating database",
		pipeline.Int("from", currentVersion),
		pipeline.Int("to", latestVersion))

	var pending []int
	for version := range mm.migrations {
		if version > currentVersion {
			pending = append(pending, version)
		}
	}
	sort.Ints(pending)

	for _, version := range pending {
		if err := mm.runMigration(version, true); err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, version, err)
		}
		mm.logger.Info("Applied migration",
			pipeline.Int("version", version),
			pipeline.String("name", mm.migrations[version].Name))
	}
	return nil
}

// Rollback rolls back the last migration
func (mm *migrationManager) Rollback() error {
	currentVersion, err := mm.GetCurrentVersion()
	if err != nil {
		return err
	}
	if currentVersion == 0 {
		return fmt.Errorf("%w: no migrations applied", ErrCannotRollback)
	}

	if err := mm.runMigration(currentVersion, false); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", currentVersion, err)
	}

	mm.logger.Info("Rolled back migration",
		pipeline.Int("version", currentVersion),
		pipeline.String("name", mm.migrations[currentVersion].Name))
	return nil
}

// GetMigrationHistory returns the applied migrations in order
func (mm *migrationManager) GetMigrationHistory() ([]*Migration, error) {
	rows, err := mm.db.Query(`
		SELECT version, name, description, checksum, applied_at
		FROM schema_migrations
		ORDER BY version
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		migration := &Migration{}
		var description sql.NullString
		if err := rows.Scan(
			&migration.Version,
			&migration.Name,
			&description,
			&migration.Checksum,
			&migration.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migration.Description = description.String
		migrations = append(migrations, migration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return migrations, nil
}

// runMigration runs a single migration up or down inside a transaction
func (mm *migrationManager) runMigration(version int, up bool) error {
	migration, exists := mm.migrations[version]
	if !exists {
		return fmt.Errorf("%w: %d", ErrMigrationNotFound, version)
	}

	tx, err := mm.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	script := migration.DownSQL
	if up {
		script = migration.UpSQL
	}
	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if up {
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO schema_migrations (version, name, description, checksum, applied_at)
			VALUES (?, ?, ?, ?, ?)
		`, version, migration.Name, migration.Description, migration.Checksum, time.Now().UTC())
	} else {
		_, err = tx.Exec("DELETE FROM schema_migrations WHERE version = ?", version)
	}
	if err != nil {
		return fmt.Errorf("failed to update migration tracking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// calculateChecksum calculates MD5 checksum of migration SQL
func (mm *migrationManager) calculateChecksum(sql string) string {
	hash := md5.Sum([]byte(sql))
	return fmt.Sprintf("%x", hash)
}
