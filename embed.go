// Package lexquota exposes build-time embedded assets shared by the
// service binaries.
package lexquota

import "embed"

// Migrations holds the goose SQL migrations applied at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
