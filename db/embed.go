// Package db provides embedded database schema and migration files.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables, plus the
// seed rows for the configurable order status set.
//
//go:embed migrations/001_schema.sql
var Schema string
