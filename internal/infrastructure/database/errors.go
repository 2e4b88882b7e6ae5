package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationMissing is returned when an applied migration has no file.
	ErrMigrationMissing = errors.New("database: migration not found")
)
