package postgres

import (
	"database/sql"
	_ "embed"

	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

var Dialect = storage.Dialect{Name: "postgres", Schema: schema, Numbered: true}

func New(dsn string) (*storage.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return storage.New(db, Dialect), nil
}
