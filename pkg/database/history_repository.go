package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/latoulicious/Conch/pkg/common"
)

// historyRepository implements HistoryRepository on the play_history table
type historyRepository struct {
	db        *sql.DB
	retention int
}

// NewHistoryRepository creates a repository that keeps at most retention rows
// per guild. Zero keeps everything.
func NewHistoryRepository(db *sql.DB, retention int) HistoryRepository {
	return &historyRepository{db: db, retention: retention}
}

func (r *historyRepository) RecordPlay(guildID string, song *common.Song, outcome string) error {
	if guildID == "" {
		return ErrInvalidGuildID
	}
	if song == nil || outcome == "" {
		return ErrInvalidOutcome
	}

	_, err := r.db.Exec(`
		INSERT INTO play_history (guild_id, name, reference, author, requested_by, outcome, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, guildID, song.Name, song.Reference, song.Author, song.RequestedBy, outcome, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}

	if r.retention > 0 {
		if _, err := r.Prune(guildID, r.retention); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns the newest entries first
func (r *historyRepository) Recent(guildID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(`
		SELECT id, guild_id, name, reference, author, requested_by, outcome, played_at
		FROM play_history
		WHERE guild_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry := &HistoryEntry{}
		var author, requestedBy sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.GuildID,
			&entry.Name,
			&entry.Reference,
			&author,
			&requestedBy,
			&entry.Outcome,
			&entry.PlayedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan play history: %w", err)
		}
		entry.Author = author.String
		entry.RequestedBy = requestedBy.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating play history: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest keep entries of a guild
func (r *historyRepository) Prune(guildID string, keep int) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM play_history
		WHERE guild_id = ? AND id NOT IN (
			SELECT id FROM play_history WHERE guild_id = ? ORDER BY id DESC LIMIT ?
		)
	`, guildID, guildID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune play history: %w", err)
	}
	return result.RowsAffected()
}
