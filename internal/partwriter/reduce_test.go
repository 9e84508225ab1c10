package partwriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

func TestReduceBlockOrdinaryIsPassThrough(t *testing.T) {
	block := types.Block{Columns: []types.Column{intCol("k", 1, 2, 3)}}
	out, err := reduceBlock(block, nil, nil, types.MergingParams{Mode: types.MergingOrdinary}, &logging.NoOpLogger{})
	require.NoError(t, err)
	assert.Equal(t, block, out)
}

func TestReduceBlockRejectsUnknownMode(t *testing.T) {
	block := types.Block{Columns: []types.Column{intCol("k", 1)}}
	_, err := reduceBlock(block, nil, nil, types.MergingParams{Mode: "bogus"}, &logging.NoOpLogger{})
	require.Error(t, err)
}

func TestReplacingKeepsMaxVersionPerKey(t *testing.T) {
	block := types.Block{Columns: []types.Column{
		intCol("k", 1, 1, 2),
		intCol("version", 1, 2, 1),
	}}
	out, err := reduceBlock(block, nil, types.SortingKey{"k"}, types.MergingParams{
		Mode: types.MergingReplacing, VersionColumn: "version",
	}, &logging.NoOpLogger{})
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())
	kCol, _ := out.ColumnByName("k")
	verCol, _ := out.ColumnByName("version")
	assert.Equal(t, []any{int64(1), int64(2)}, kCol.Values)
	assert.Equal(t, []any{int64(2), int64(1)}, verCol.Values)
}

func TestCollapsingCancelsMatchingPairs(t *testing.T) {
	block := types.Block{Columns: []types.Column{
		intCol("k", 1, 1),
		intCol("sign", 1, -1),
	}}
	out, err := reduceBlock(block, nil, types.SortingKey{"k"}, types.MergingParams{
		Mode: types.MergingCollapsing, SignColumn: "sign",
	}, &logging.NoOpLogger{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.NumRows())
}

func TestCollapsingLogsAnomalyOnImbalance(t *testing.T) {
	block := types.Block{Columns: []types.Column{
		intCol("k", 1, 1, 1),
		intCol("sign", 1, 1, -1),
	}}
	logger := &capturingLogger{}
	out, err := reduceBlock(block, nil, types.SortingKey{"k"}, types.MergingParams{
		Mode: types.MergingCollapsing, SignColumn: "sign",
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
	assert.True(t, logger.warned)
}

type capturingLogger struct {
	logging.NoOpLogger
	warned bool
}

func (c *capturingLogger) Warn(msg string, fields ...interface{}) {
	c.warned = true
}

func TestSummingAggregatesColumns(t *testing.T) {
	block := types.Block{Columns: []types.Column{
		intCol("k", 1, 1, 2),
		intCol("amount", 10, 5, 7),
	}}
	out, err := reduceBlock(block, nil, types.SortingKey{"k"}, types.MergingParams{
		Mode: types.MergingSumming, ColumnsToSum: []string{"amount"},
	}, &logging.NoOpLogger{})
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())
	amtCol, _ := out.ColumnByName("amount")
	assert.Equal(t, []any{int64(15), int64(7)}, amtCol.Values)
}

func TestVersionedCollapsingCancelsAdjacentMatchingVersion(t *testing.T) {
	block := types.Block{Columns: []types.Column{
		intCol("k", 1, 1, 2),
		intCol("version", 1, 1, 1),
		intCol("sign", 1, -1, 1),
	}}
	out, err := reduceBlock(block, nil, types.SortingKey{"k"}, types.MergingParams{
		Mode: types.MergingVersionedCollapsing, SignColumn: "sign", VersionColumn: "version",
	}, &logging.NoOpLogger{})
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	kCol, _ := out.ColumnByName("k")
	assert.Equal(t, []any{int64(2)}, kCol.Values)
}
