// Package db embeds the SQL migrations for every supported dialect.
package db

import "embed"

//go:embed migrations
var Migrations embed.FS
