// Package migrations embeds the SQL migration files applied at startup by
// internal/infrastructure/storage.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
