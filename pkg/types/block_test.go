package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBlock() Block {
	return Block{Columns: []Column{
		{Name: "k", Type: ColumnTypeInt64, Values: []any{int64(1), int64(2), int64(3)}},
		{Name: "v", Type: ColumnTypeString, Values: []any{"a", "b", "c"}},
	}}
}

func TestBlockPermuteStable(t *testing.T) {
	b := sampleBlock()
	permuted := b.Permute([]int{2, 0, 1})

	k, ok := permuted.ColumnByName("k")
	require.True(t, ok)
	assert.Equal(t, []any{int64(3), int64(1), int64(2)}, k.Values)

	v, ok := permuted.ColumnByName("v")
	require.True(t, ok)
	assert.Equal(t, []any{"c", "a", "b"}, v.Values)
}

func TestBlockWithColumnReplacesByName(t *testing.T) {
	b := sampleBlock()
	b2 := b.WithColumn(Column{Name: "k", Type: ColumnTypeInt64, Values: []any{int64(9), int64(9), int64(9)}})

	assert.Equal(t, 2, len(b2.Columns))
	k, _ := b2.ColumnByName("k")
	assert.Equal(t, []any{int64(9), int64(9), int64(9)}, k.Values)
}

func TestBlockDropColumns(t *testing.T) {
	b := sampleBlock().WithColumn(Column{Name: "__partition", Type: ColumnTypeInt64, Values: []any{int64(0), int64(0), int64(0)}})
	dropped := b.DropColumns("__partition")
	_, ok := dropped.ColumnByName("__partition")
	assert.False(t, ok)
	assert.Equal(t, 2, len(dropped.Columns))
}

func TestEvalAllChainsComputedColumns(t *testing.T) {
	b := sampleBlock()
	exprs := []Expr{
		{ResultName: "k_doubled", Eval: func(in Block) (Column, error) {
			col, _ := in.ColumnByName("k")
			vals := make([]any, len(col.Values))
			for i, v := range col.Values {
				vals[i] = v.(int64) * 2
			}
			return Column{Type: ColumnTypeInt64, Values: vals}, nil
		}},
	}
	out, added, err := EvalAll(b, exprs)
	require.NoError(t, err)
	assert.Equal(t, []string{"k_doubled"}, added)
	doubled, ok := out.ColumnByName("k_doubled")
	require.True(t, ok)
	assert.Equal(t, []any{int64(2), int64(4), int64(6)}, doubled.Values)
}

func TestPartitionTupleKey(t *testing.T) {
	a := PartitionTuple{"repo", int64(2024)}
	b := PartitionTuple{"repo", int64(2024)}
	c := PartitionTuple{"repo", int64(2025)}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestTTLInfoFold(t *testing.T) {
	var info TTLInfo
	assert.False(t, info.IsSet())
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(2000, 0)
	info.Update(t1)
	info.Update(t0)
	assert.True(t, info.IsSet())
	assert.Equal(t, t0, info.Min)
	assert.Equal(t, t1, info.Max)
}

func TestComputeMinMaxEmptyBlock(t *testing.T) {
	idx := ComputeMinMax(Block{}, []string{"k"})
	assert.Nil(t, idx.Intervals)
}

func TestComputeMinMax(t *testing.T) {
	b := sampleBlock()
	idx := ComputeMinMax(b, []string{"k"})
	iv := idx.Intervals["k"]
	assert.Equal(t, int64(1), iv.Min)
	assert.Equal(t, int64(3), iv.Max)
}
