package store

import (
	_ "embed"
)

// Embedded client schema (SQLite).
//
//go:embed migrations/001_init.sql
var initDDL string

// migrations is ordered and append-only; each entry runs once, tracked via
// PRAGMA user_version, so unsynced records survive schema upgrades.
var migrations = []string{
	initDDL,
}
