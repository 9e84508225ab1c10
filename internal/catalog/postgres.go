package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver

	"mergetree-writer/internal/config"
	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

// NewPostgresStore opens a postgres-backed catalog for shared deployments
// where multiple writer processes need a single part registry.
func NewPostgresStore(cfg config.PostgresConfig, schemas map[string]types.TableSchema, logger logging.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres catalog: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres catalog: %w", err)
	}
	return newSQLStore(db, dialectPostgres, schemas, logger)
}
