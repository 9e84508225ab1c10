package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/internal/catalog"
	"mergetree-writer/internal/config"
	"mergetree-writer/internal/counter"
	"mergetree-writer/internal/janitor"
	"mergetree-writer/internal/logging"
	"mergetree-writer/internal/storagepolicy"
	"mergetree-writer/internal/vectorindex"
	"mergetree-writer/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	base := t.TempDir()

	schemas := map[string]types.TableSchema{
		"events": {
			TableName:  "events",
			SortingKey: types.SortingKey{"k"},
			Columns: []types.Column{
				{Name: "k", Type: types.ColumnTypeInt64},
				{Name: "v", Type: types.ColumnTypeString},
			},
		},
	}
	store, err := catalog.NewSQLiteStore(filepath.Join(base, "catalog.db"), schemas, &logging.NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry, err := janitor.NewRegistry(filepath.Join(base, "janitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	volume := storagepolicy.Volume{
		Name: "main",
		Path: base,
		DiskUsage: func(ctx context.Context) (int64, error) {
			return 1 << 40, nil
		},
	}
	reserver, err := storagepolicy.NewReserver(
		storagepolicy.Policy{Name: "default", Volumes: []storagepolicy.Volume{volume}},
		storagepolicy.NoCache{}, &logging.NoOpLogger{})
	require.NoError(t, err)

	sink, err := vectorindex.NewSink(config.VectorIndexConfig{Enabled: false}, &logging.NoOpLogger{})
	require.NoError(t, err)

	return New(
		store, reserver, registry, sink,
		counter.NewTempIndex(0, nil, "temp_index", &logging.NoOpLogger{}),
		&counter.EventCounters{},
		nil,
		config.WriterConfig{TempPartBaseDir: filepath.Join(base, "tmp")},
		&logging.NoOpLogger{},
	)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp healthzResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsReflectsCounters(t *testing.T) {
	s := newTestServer(t)
	s.counters.PartsWritten.Add(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var snap counter.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, int64(3), snap.PartsWritten)
}

func TestInsertUnknownTableFails(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(insertRequest{})
	req := httptest.NewRequest(http.MethodPost, "/insert/nosuchtable", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestInsertWritesAndRegistersPart(t *testing.T) {
	s := newTestServer(t)

	reqBody := insertRequest{
		Block: wireBlock{Columns: []wireColumn{
			{Name: "k", Values: []json.RawMessage{[]byte("1"), []byte("2")}},
			{Name: "v", Values: []json.RawMessage{[]byte(`"a"`), []byte(`"b"`)}},
		}},
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/insert/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp insertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Parts, 1)
	assert.Equal(t, 2, resp.Parts[0].RowCount)

	parts, err := s.store.ListParts(context.Background(), "events")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, resp.Parts[0].Name, parts[0].Name)
}
