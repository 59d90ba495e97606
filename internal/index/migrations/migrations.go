// Package migrations embeds the SQL schema for the local file index.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
