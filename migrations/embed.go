// Package migrations embeds the SQL migration files into the binary.
//
// The presence service runs its migrations at startup without needing the
// SQL files present on the filesystem.
package migrations

import "embed"

// FS holds every migration at its root, ready for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
