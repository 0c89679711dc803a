package migrations

import "embed"

// FS contains the embedded history migrations.
//
//go:embed *.sql
var FS embed.FS
