// Package catalog keeps a SQLite record of every measurement run: what was
// run, with which parameters, where the data went and how it ended.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is the run catalogue.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the catalogue at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	// One writer at a time; runs are sequential anyway.
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}
