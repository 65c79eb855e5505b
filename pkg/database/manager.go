package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// databaseManager implements the DatabaseManager interface
type databaseManager struct {
	config             *DatabaseConfig
	logger             pipeline.Logger
	db                 *sql.DB
	migrationManager   MigrationManager
	settingsRepository SettingsRepository
	historyRepository  HistoryRepository

	connected bool
	mutex     sync.RWMutex
}

// NewDatabaseManager creates a manager; call Connect before using the repositories
func NewDatabaseManager(config *DatabaseConfig, logger pipeline.Logger) (DatabaseManager, error) {
	if config == nil {
		config = DefaultDatabaseConfig()
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	return &databaseManager{
		config: config,
		logger: logger.With(pipeline.String("component", "database")),
	}, nil
}

// Connect opens the database, runs migrations and prepares the repositories
func (dm *databaseManager) Connect() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.connected {
		return nil
	}

	db, err := sql.Open("sqlite3", dm.buildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(dm.config.MaxConnections)
	db.SetMaxIdleConns(max(1, dm.config.MaxConnections/2))
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager, err := NewMigrationManager(db, dm.logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration manager: %w", err)
	}
	if err := migrationManager.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dm.db = db
	dm.migrationManager = migrationManager
	dm.settingsRepository = NewSettingsRepository(db)
	dm.historyRepository = NewHistoryRepository(db, dm.config.HistoryRetention)
	dm.connected = true

	dm.logger.Info("Database connected", pipeline.String("path", dm.config.DatabasePath))
	return nil
}

// Close closes the database connection
func (dm *databaseManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if !dm.connected {
		return nil
	}

	if err := dm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	dm.connected = false
	dm.logger.Info("Database closed")
	return nil
}

// Ping tests the database connection
func (dm *databaseManager) Ping(ctx context.Context) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected || dm.db == nil {
		return ErrDatabaseNotConnected
	}
	return dm.db.PingContext(ctx)
}

func (dm *databaseManager) SettingsRepository() SettingsRepository {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.settingsRepository
}

func (dm *databaseManager) HistoryRepository() HistoryRepository {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.historyRepository
}

// Migrate runs pending migrations
func (dm *databaseManager) Migrate() error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if dm.migrationManager == nil {
		return ErrDatabaseNotConnected
	}
	return dm.migrationManager.Migrate()
}

// GetSchemaVersion returns the current schema version
func (dm *databaseManager) GetSchemaVersion() (int, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if dm.migrationManager == nil {
		return 0, ErrDatabaseNotConnected
	}
	return dm.migrationManager.GetCurrentVersion()
}

// GetStats returns row counts and the file size
func (dm *databaseManager) GetStats() (*DatabaseStats, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return nil, ErrDatabaseNotConnected
	}

	stats := &DatabaseStats{}
	version, err := dm.migrationManager.GetCurrentVersion()
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version

	if err := dm.db.QueryRow("SELECT COUNT(*) FROM guild_settings").Scan(&stats.GuildSettings); err != nil {
		return nil, fmt.Errorf("failed to count guild settings: %w", err)
	}
	if err := dm.db.QueryRow("SELECT COUNT(*) FROM play_history").Scan(&stats.HistoryRows); err != nil {
		return nil, fmt.Errorf("failed to count play history: %w", err)
	}

	if fileInfo, err := os.Stat(dm.config.DatabasePath); err == nil {
		stats.FileSize = fileInfo.Size()
	}
	return stats, nil
}

// Backup writes a consistent copy of the database to path
func (dm *databaseManager) Backup(path string) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return ErrDatabaseNotConnected
	}

	backupQuery := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(path, "'", "''"))
	if _, err := dm.db.Exec(backupQuery); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}

	dm.logger.Info("Database backup created", pipeline.String("path", path))
	return nil
}

// buildConnectionString builds the SQLite connection string with options
func (dm *databaseManager) buildConnectionString() string {
	connStr := dm.config.DatabasePath + "?"

	if dm.config.WALMode {
		connStr += "_journal_mode=WAL&"
	}

	connStr += fmt.Sprintf("_synchronous=%s&", dm.config.SynchronousMode)
	connStr += fmt.Sprintf("_cache_size=%d&", dm.config.CacheSize)
	connStr += "_busy_timeout=5000&"
	connStr += "_foreign_keys=on"

	return connStr
}
