// Package database provides SQLite connectivity for the Paddy Dryer core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations tracked in schema_migrations
//   - Transaction helpers
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and live in the top-level migrations package.
package database
