// Package migrations embeds the PostgreSQL schema so binaries do not depend
// on the working directory.
package migrations

import "embed"

// SQL holds the numbered .up.sql/.down.sql pairs under sql/.
//
//go:embed sql/*.sql
var SQL embed.FS

// Dir is the directory inside SQL that holds the files.
const Dir = "sql"
