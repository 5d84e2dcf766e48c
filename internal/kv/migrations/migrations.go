// Package migrations embeds the goose migrations for the SQLite kv backend.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
