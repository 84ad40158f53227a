// Package migrations holds the schema, applied in version order by
// `coding-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
