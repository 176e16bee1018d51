// Package database provides the SQLite connection behind the measurement
// archive.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Forward-only schema migrations read from an fs.FS
//   - Health checks for startup
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and applied
// in version order, each in its own transaction.
package database
