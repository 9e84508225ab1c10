package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

// NewSQLiteStore opens (creating if necessary) a sqlite-backed catalog at
// path, loaded with the table schemas already resolved from YAML.
func NewSQLiteStore(path string, schemas map[string]types.TableSchema, logger logging.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	return newSQLStore(db, dialectSQLite, schemas, logger)
}
