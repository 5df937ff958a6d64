// Package migrations embeds the schema of the postgres cloud backend.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
