// Package db embeds the SQL schema applied on startup.
package db

import _ "embed"

// Schema holds the DDL for the courses, coupons, discount ledger, order and
// API key tables. Applied idempotently by repository.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
