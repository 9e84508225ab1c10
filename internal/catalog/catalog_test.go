package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

const sampleSchemaYAML = `
tables:
  - name: events
    columns:
      - {name: event_time, type: DateTime}
      - {name: repo, type: String}
      - {name: value, type: Int64}
    partition_key:
      - {column: event_time, function: toYYYYMM}
    sorting_key: [repo, event_time]
    ttl:
      - {category: rows, name: events_rows_ttl, column: event_time, after_seconds: 2592000}
    merging:
      mode: Ordinary
`

func TestLoadTableSchemas(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSchemaYAML), 0o644))

	schemas, err := LoadTableSchemas(path)
	require.NoError(t, err)
	require.Contains(t, schemas, "events")

	schema := schemas["events"]
	assert.Equal(t, types.SortingKey{"repo", "event_time"}, schema.SortingKey)
	require.Len(t, schema.PartitionKey, 1)
	require.Len(t, schema.TTLEntries, 1)
	assert.Equal(t, types.TTLCategoryRows, schema.TTLEntries[0].Category)
}

func TestSQLiteStoreRegisterAndListParts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSchemaYAML), 0o644))
	schemas, err := LoadTableSchemas(path)
	require.NoError(t, err)

	dbPath := filepath.Join(dir, "catalog.db")
	store, err := NewSQLiteStore(dbPath, schemas, &logging.NoOpLogger{})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	part := types.PartDescriptor{
		Name:        "202401_1_1_0",
		PartitionID: "202401",
		MinBlock:    1,
		MaxBlock:    1,
		Level:       0,
		RowCount:    10,
		PartType:    types.PartTypeWide,
	}
	require.NoError(t, store.RegisterPart(ctx, "events", part))

	parts, err := store.ListParts(ctx, "events")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "202401_1_1_0", parts[0].Name)
	assert.Equal(t, 10, parts[0].RowCount)
}

func TestTableSchemaUnknownTable(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	store, err := NewSQLiteStore(dbPath, map[string]types.TableSchema{}, &logging.NoOpLogger{})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.TableSchema(context.Background(), "missing")
	assert.Error(t, err)
}
