// Package migrations embeds the schema files so a deployed binary carries
// its own schema and never depends on a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
