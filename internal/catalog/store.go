package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

// Store is the part-metadata and table-schema collaborator: it hands
// the writer its TableSchema and receives finished PartDescriptors for
// bookkeeping. Both the sqlite and postgres backings implement it
// identically; only the driver and placeholder style differ.
type Store interface {
	TableSchema(ctx context.Context, tableName string) (types.TableSchema, error)
	RegisterPart(ctx context.Context, tableName string, part types.PartDescriptor) error
	ListParts(ctx context.Context, tableName string) ([]types.PartDescriptor, error)
	Close() error
}

// SQLStore implements Store over database/sql, working against either the
// sqlite or postgres driver depending on how it was constructed.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	schemas map[string]types.TableSchema
	logger  logging.Logger
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func newSQLStore(db *sql.DB, d dialect, schemas map[string]types.TableSchema, logger logging.Logger) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, schemas: schemas, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmt := partsTableDDL(s.dialect)
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func partsTableDDL(d dialect) string {
	if d == dialectPostgres {
		return `CREATE TABLE IF NOT EXISTS mergetree_parts (
			table_name TEXT NOT NULL,
			part_name TEXT NOT NULL,
			partition_id TEXT NOT NULL,
			min_block BIGINT NOT NULL,
			max_block BIGINT NOT NULL,
			level BIGINT NOT NULL,
			row_count INTEGER NOT NULL,
			part_type TEXT NOT NULL,
			part_uuid TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, part_name)
		)`
	}
	return `CREATE TABLE IF NOT EXISTS mergetree_parts (
		table_name TEXT NOT NULL,
		part_name TEXT NOT NULL,
		partition_id TEXT NOT NULL,
		min_block INTEGER NOT NULL,
		max_block INTEGER NOT NULL,
		level INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		part_type TEXT NOT NULL,
		part_uuid TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (table_name, part_name)
	)`
}

// TableSchema returns the named table's resolved schema. Schemas are
// loaded once at startup from YAML (see LoadTableSchemas); there is no
// live DDL path in the writer's scope.
func (s *SQLStore) TableSchema(_ context.Context, tableName string) (types.TableSchema, error) {
	schema, ok := s.schemas[tableName]
	if !ok {
		return types.TableSchema{}, fmt.Errorf("table %q not found in catalog", tableName)
	}
	return schema, nil
}

// partMetadata is the JSON sidecar persisted per part, carrying the
// minmax index and TTL summaries that don't fit cleanly in flat columns.
type partMetadata struct {
	PartitionKey string             `json:"partition_key"`
	MinMax       types.MinMaxIndex  `json:"minmax"`
	TTLInfos     types.PartTTLInfos `json:"ttl_infos"`
	Projections  []string           `json:"projections,omitempty"`
}

// RegisterPart persists part's descriptor for tableName.
func (s *SQLStore) RegisterPart(ctx context.Context, tableName string, part types.PartDescriptor) error {
	projNames := make([]string, len(part.Projections))
	for i, p := range part.Projections {
		projNames[i] = p.Name
	}
	meta := partMetadata{
		PartitionKey: part.Partition.Key(),
		MinMax:       part.MinMax,
		TTLInfos:     part.TTLInfos,
		Projections:  projNames,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal part metadata: %w", err)
	}

	query := s.placeholder(`INSERT INTO mergetree_parts
		(table_name, part_name, partition_id, min_block, max_block, level, row_count, part_type, part_uuid, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		tableName, part.Name, part.PartitionID, part.MinBlock, part.MaxBlock, part.Level,
		part.RowCount, string(part.PartType), part.UUID, string(metaBytes))
	if err != nil {
		return fmt.Errorf("register part %s: %w", part.Name, err)
	}
	s.logger.Debug("registered part", "table", tableName, "part", part.Name, "rows", part.RowCount)
	return nil
}

// ListParts returns every registered part for tableName, most recent
// first.
func (s *SQLStore) ListParts(ctx context.Context, tableName string) ([]types.PartDescriptor, error) {
	query := s.placeholder(`SELECT part_name, partition_id, min_block, max_block, level, row_count, part_type, part_uuid, metadata
		FROM mergetree_parts WHERE table_name = ? ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("list parts for %s: %w", tableName, err)
	}
	defer rows.Close()

	var out []types.PartDescriptor
	for rows.Next() {
		var (
			name, partitionID, partType, uuid, metaRaw string
			minBlock, maxBlock, level                  int64
			rowCount                                   int
		)
		if err := rows.Scan(&name, &partitionID, &minBlock, &maxBlock, &level, &rowCount, &partType, &uuid, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan part row: %w", err)
		}
		var meta partMetadata
		if metaRaw != "" {
			if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for part %s: %w", name, err)
			}
		}
		out = append(out, types.PartDescriptor{
			Name:        name,
			PartitionID: partitionID,
			MinBlock:    minBlock,
			MaxBlock:    maxBlock,
			Level:       level,
			RowCount:    rowCount,
			PartType:    types.PartType(partType),
			UUID:        uuid,
			MinMax:      meta.MinMax,
			TTLInfos:    meta.TTLInfos,
		})
	}
	return out, rows.Err()
}

// placeholder rewrites ?-style placeholders to $N for postgres.
func (s *SQLStore) placeholder(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, []byte(fmt.Sprintf("$%d", n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
