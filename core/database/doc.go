// Package database handles the record store connection and schema inspection.
//
// It wraps GORM configuration for the two supported drivers: SQLite for
// self-contained single-user deployments (the default) and MySQL for
// server-hosted ones.
//
// # Connect
//
// The Connect function picks the driver from configuration and applies
// sensible pool settings for each. SQLite runs on a single connection to
// avoid write contention under chunked transactional commits.
//
// # Schema Inspection
//
// GetTableColumns retrieves column definitions for a table on either driver.
// The status command uses it to verify the ingest schema is present and
// migrated before reporting on checkpoints and runs.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
package database
