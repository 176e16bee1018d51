// Package migrations embeds the archive's SQL migration files into the binary.
package migrations

import "embed"

// FS holds every *.up.sql migration at its root. Pass it to database.Migrate.
//
//go:embed *.sql
var FS embed.FS
