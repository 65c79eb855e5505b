package cron

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/latoulicious/Conch/pkg/database"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// Maintainable is the part of the database the maintenance job needs
type Maintainable interface {
	Ping(ctx context.Context) error
	GetStats() (*database.DatabaseStats, error)
	Backup(path string) error
}

// CounterSource sums counters across their tags
type CounterSource interface {
	SumCounter(name string) float64
}

// reportedCounters are the counters logged by MetricsReport
var reportedCounters = []string{
	"player.songs.started",
	"player.songs.finished",
	"player.resolution.failures",
	"playback.errors.total",
	"playback.stream.stalls",
	"gateway.reconnect.attempts",
}

// DatabaseMaintenance checks the database is reachable and logs its size.
// With a backupDir it also writes a timestamped copy there.
func DatabaseMaintenance(db Maintainable, backupDir string, logger pipeline.Logger) Job {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}

		stats, err := db.GetStats()
		if err != nil {
			return err
		}
		logger.Info("Database stats",
			pipeline.Int("schema_version", stats.SchemaVersion),
			pipeline.Int64("guild_settings", stats.GuildSettings),
			pipeline.Int64("history_rows", stats.HistoryRows),
			pipeline.Int64("file_size", stats.FileSize),
		)

		if backupDir == "" {
			return nil
		}
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
		return db.Backup(BackupPath(backupDir, time.Now()))
	}
}

// BackupPath names the backup file written at t
func BackupPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("conch-%s.db", t.UTC().Format("20060102-150405")))
}

// MetricsReport logs the playback counters collected so far
func MetricsReport(source CounterSource, logger pipeline.Logger) Job {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return func(context.Context) error {
		fields := make([]pipeline.Field, 0, len(reportedCounters))
		for _, name := range reportedCounters {
			fields = append(fields, pipeline.Float64(name, source.SumCounter(name)))
		}
		logger.Info("Metrics report", fields...)
		return nil
	}
}
