package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/latoulicious/Conch/pkg/common"
)

// settingsRepository implements SettingsRepository on the guild_settings table
type settingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a repository on a migrated database
func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetSettings(guildID string) (*common.GuildSettings, error) {
	if guildID == "" {
		return nil, ErrInvalidGuildID
	}

	var (
		volume    float64
		mode      string
		updatedAt time.Time
	)
	err := r.db.QueryRow(`
		SELECT volume, play_mode, updated_at
		FROM guild_settings
		WHERE guild_id = ?
	`, guildID).Scan(&volume, &mode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guild settings: %w", err)
	}

	settings := common.NewGuildSettings(guildID)
	settings.Volume = volume
	settings.UpdatedAt = updatedAt
	// an unknown stored mode falls back to queue mode
	settings.Mode, _ = common.ParsePlayMode(mode)
	return settings, nil
}

func (r *settingsRepository) SaveSettings(settings *common.GuildSettings) error {
	if settings == nil || settings.GuildID == "" {
		return ErrInvalidGuildID
	}

	updatedAt := settings.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO guild_settings (guild_id, volume, play_mode, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			volume = excluded.volume,
			play_mode = excluded.play_mode,
			updated_at = excluded.updated_at
	`, settings.GuildID, settings.Volume, settings.Mode.String(), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}

func (r *settingsRepository) DeleteSettings(guildID string) error {
	if _, err := r.db.Exec("DELETE FROM guild_settings WHERE guild_id = ?", guildID); err != nil {
		return fmt.Errorf("failed to delete guild settings: %w", err)
	}
	return nil
}
