// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema contains the DDL statements for all pricing service tables.
//
//go:embed migrations/001_schema.sql
var Schema string
