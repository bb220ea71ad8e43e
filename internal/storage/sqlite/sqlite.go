package sqlite

import (
	"database/sql"
	_ "embed"

	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

var Dialect = storage.Dialect{Name: "sqlite", Schema: schema}

func New(dsn string) (*storage.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable WAL for better concurrency
	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)

	// Wait up to 5s if locked
	_, _ = db.Exec(`PRAGMA busy_timeout = 5000;`)

	return storage.New(db, Dialect), nil
}
