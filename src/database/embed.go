package database

import "embed"

// Migrations are embedded so they apply identically from any working
// directory, including tests.
//
//go:embed migrations
var migrationsFS embed.FS
