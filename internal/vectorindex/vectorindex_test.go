package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/internal/config"
	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

func TestDisabledSinkIsNoOp(t *testing.T) {
	sink, err := NewSink(config.VectorIndexConfig{Enabled: false}, &logging.NoOpLogger{})
	require.NoError(t, err)

	require.NoError(t, sink.EnsureCollection(context.Background(), "proj", 4))

	block := types.Block{Columns: []types.Column{
		{Name: "embedding", Type: types.ColumnTypeVector, Values: []any{[]float32{0.1, 0.2}}},
	}}
	proj := types.Projection{Name: "proj", EmbeddingColumn: "embedding"}

	// Must not panic or error even with a nil underlying client.
	sink.Upsert(context.Background(), "proj", "part1", proj, block)
	assert.NoError(t, sink.Close())
}

func TestUpsertSkipsWhenEmbeddingColumnMissing(t *testing.T) {
	sink, err := NewSink(config.VectorIndexConfig{Enabled: false}, &logging.NoOpLogger{})
	require.NoError(t, err)

	block := types.Block{Columns: []types.Column{
		{Name: "other", Type: types.ColumnTypeString, Values: []any{"x"}},
	}}
	proj := types.Projection{Name: "proj", EmbeddingColumn: "embedding"}
	sink.Upsert(context.Background(), "proj", "part1", proj, block)
}
