// Package migrations embeds the SQL schema files applied at startup.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS exposes the embedded migration files rooted at the SQL directory.
var FS fs.FS = files
