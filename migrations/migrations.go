// Package migrations embeds the versioned schema files applied by db.Migrate.
// File names follow NNN_description.sql; NNN is the version.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
