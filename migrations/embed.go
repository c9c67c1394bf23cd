// Package migrations embeds the Catalog's SQL schema so the server binary
// carries it without a separate migrations directory at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
