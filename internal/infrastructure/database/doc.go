// Package database provides SQLite connection management for Tuya Core.
//
// This package wraps database/sql with the mattn/go-sqlite3 driver and:
//   - WAL mode and busy-timeout pragmas for concurrent access
//   - Single-writer connection pool sizing
//   - Idempotent schema bootstrap at startup
//   - Health checks for monitoring
//
// The only table owned by this service is update_history, the durable
// archive of finished firmware updates.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
