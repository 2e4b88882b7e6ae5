// Package migrations embeds the history database schema into the binary.
//
// Importing it for side effects registers the files with the database
// package.
package migrations

import (
	"embed"

	"github.com/nerrad567/haunt-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
	database.MigrationsDir = "."
}
