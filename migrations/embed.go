// Package migrations embeds the goose SQL migrations applied at process
// startup, grounded on relational.Migrate's embed.FS parameter.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
