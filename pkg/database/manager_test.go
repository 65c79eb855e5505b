package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Conch/pkg/common"
)

func connectedManager(t *testing.T) DatabaseManager {
	t.Helper()

	dm, err := NewDatabaseManager(ConfigForPath(filepath.Join(t.TempDir(), "test.db")), nil)
	require.NoError(t, err)
	require.NoError(t, dm.Connect())
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestNewDatabaseManager(t *testing.T) {
	tests := []struct {
		name        string
		config      *DatabaseConfig
		expectError bool
	}{
		{
			name:        "nil config uses defaults",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultDatabaseConfig(),
			expectError: false,
		},
		{
			name: "invalid config - empty database path",
			config: &DatabaseConfig{
				DatabasePath: "",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm, err := NewDatabaseManager(tt.config, nil)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, dm)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, dm)
			}
		})
	}
}

func TestDatabaseManager_ConnectAndClose(t *testing.T) {
	dm, err := NewDatabaseManager(ConfigForPath(filepath.Join(t.TempDir(), "test.db")), nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, dm.Ping(ctx), ErrDatabaseNotConnected)

	require.NoError(t, dm.Connect())
	require.NoError(t, dm.Connect(), "connecting twice is a no-op")
	assert.NoError(t, dm.Ping(ctx))
	assert.NotNil(t, dm.SettingsRepository())
	assert.NotNil(t, dm.HistoryRepository())

	require.NoError(t, dm.Close())
	assert.ErrorIs(t, dm.Ping(ctx), ErrDatabaseNotConnected)
	assert.NoError(t, dm.Close())
}

func TestDatabaseManager_Migration(t *testing.T) {
	dm := connectedManager(t)

	version, err := dm.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	assert.NoError(t, dm.Migrate(), "migrating an up to date schema is a no-op")
}

func TestMigrationManager_Rollback(t *testing.T) {
	dm := connectedManager(t).(*databaseManager)
	mm := dm.migrationManager

	history, err := mm.GetMigrationHistory()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "guild_settings", history[0].Name)
	assert.NotEmpty(t, history[1].Checksum)

	require.NoError(t, mm.Rollback())
	version, err := mm.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	require.NoError(t, mm.Migrate())
	version, err = mm.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, mm.GetLatestVersion(), version)
}

func TestDatabaseManager_GetStats(t *testing.T) {
	dm := connectedManager(t)
	require.NoError(t, dm.SettingsRepository().SaveSettings(common.NewGuildSettings("guild-1")))
	require.NoError(t, dm.HistoryRepository().RecordPlay("guild-1", common.NewSong("Song", "ref", 0), "completed"))

	stats, err := dm.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SchemaVersion)
	assert.Equal(t, int64(1), stats.GuildSettings)
	assert.Equal(t, int64(1), stats.HistoryRows)
}

func TestDatabaseManager_Backup(t *testing.T) {
	dm := connectedManager(t)
	backupPath := filepath.Join(t.TempDir(), "backup.db")

	require.NoError(t, dm.Backup(backupPath))
	_, err := os.Stat(backupPath)
	assert.NoError(t, err)
}

func TestSettingsRepository(t *testing.T) {
	repo := connectedManager(t).SettingsRepository()

	settings, err := repo.GetSettings("guild-1")
	require.NoError(t, err)
	assert.Nil(t, settings, "a guild without stored settings has none")

	_, err = repo.GetSettings("")
	assert.ErrorIs(t, err, ErrInvalidGuildID)

	saved := common.NewGuildSettings("guild-1")
	saved.Volume = 0.35
	saved.Mode = common.PlayModePlaylist
	require.NoError(t, repo.SaveSettings(saved))

	loaded, err := repo.GetSettings("guild-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 0.35, loaded.Volume, 1e-9)
	assert.Equal(t, common.PlayModePlaylist, loaded.Mode)
	assert.False(t, loaded.UpdatedAt.IsZero())

	saved.Volume = 0.8
	saved.Mode = common.PlayModeQueue
	require.NoError(t, repo.SaveSettings(saved))
	loaded, err = repo.GetSettings("guild-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, loaded.Volume, 1e-9)
	assert.Equal(t, common.PlayModeQueue, loaded.Mode)

	require.NoError(t, repo.DeleteSettings("guild-1"))
	loaded, err = repo.GetSettings("guild-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.ErrorIs(t, repo.SaveSettings(nil), ErrInvalidGuildID)
}

func TestHistoryRepository(t *testing.T) {
	repo := connectedManager(t).HistoryRepository()

	song := common.NewSong("First", "https://example.com/1", time.Minute)
	song.RequestedBy = "someone"
	require.NoError(t, repo.RecordPlay("guild-1", song, "completed"))
	require.NoError(t, repo.RecordPlay("guild-1", common.NewSong("Second", "https://example.com/2", 0), "skipped"))
	require.NoError(t, repo.RecordPlay("guild-2", common.NewSong("Other", "https://example.com/3", 0), "error"))

	entries, err := repo.Recent("guild-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Second", entries[0].Name)
	assert.Equal(t, "skipped", entries[0].Outcome)
	assert.Equal(t, "First", entries[1].Name)
	assert.Equal(t, "someone", entries[1].RequestedBy)
	assert.Empty(t, entries[0].Author)

	entries, err = repo.Recent("guild-1", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.ErrorIs(t, repo.RecordPlay("", song, "completed"), ErrInvalidGuildID)
	assert.ErrorIs(t, repo.RecordPlay("guild-1", nil, "completed"), ErrInvalidOutcome)
}

func TestHistoryRepositoryRetention(t *testing.T) {
	dm := connectedManager(t).(*databaseManager)
	repo := NewHistoryRepository(dm.db, 3)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, repo.RecordPlay("guild-1", common.NewSong(name, name, 0), "completed"))
	}

	entries, err := repo.Recent("guild-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Name)
	assert.Equal(t, "c", entries[2].Name)
}

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *DatabaseConfig
		wantErr error
	}{
		{
			name:   "valid config",
			config: DefaultDatabaseConfig(),
		},
		{
			name:    "invalid database path",
			config:  &DatabaseConfig{DatabasePath: ""},
			wantErr: ErrInvalidDatabasePath,
		},
		{
			name:    "invalid max connections",
			config:  &DatabaseConfig{DatabasePath: "test.db"},
			wantErr: ErrInvalidMaxConnections,
		},
		{
			name: "invalid connection timeout",
			config: &DatabaseConfig{
				DatabasePath:   "test.db",
				MaxConnections: 10,
			},
			wantErr: ErrInvalidConnectionTimeout,
		},
		{
			name: "invalid synchronous mode",
			config: &DatabaseConfig{
				DatabasePath:      "test.db",
				MaxConnections:    10,
				ConnectionTimeout: 30 * time.Second,
				SynchronousMode:   "INVALID",
			},
			wantErr: ErrInvalidSynchronousMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildConnectionString(t *testing.T) {
	dm := &databaseManager{config: ConfigForPath("conch.db")}
	assert.Equal(t,
		"conch.db?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-16000&_busy_timeout=5000&_foreign_keys=on",
		dm.buildConnectionString())
}
