// Package migrations embeds the schema migration files so both binaries
// can apply them without a checkout on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
