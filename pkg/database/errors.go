package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath      = errors.New("invalid database path")
	ErrInvalidMaxConnections    = errors.New("invalid max connections")
	ErrInvalidConnectionTimeout = errors.New("invalid connection timeout")
	ErrInvalidSynchronousMode   = errors.New("invalid synchronous mode")
)

// Database operation errors
var (
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrBackupFailed         = errors.New("backup failed")
)

// Repository errors
var (
	ErrInvalidGuildID = errors.New("invalid guild id")
	ErrInvalidOutcome = errors.New("invalid play outcome")
)

// Migration errors
var (
	ErrMigrationNotFound = errors.New("migration not found")
	ErrCannotRollback    = errors.New("cannot rollback migration")
)
