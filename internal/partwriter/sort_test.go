package partwriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/pkg/types"
)

func intCol(name string, vs ...int64) types.Column {
	values := make([]any, len(vs))
	for i, v := range vs {
		values[i] = v
	}
	return types.Column{Name: name, Type: types.ColumnTypeInt64, Values: values}
}

func TestPlanSortEmptyKeyNoPermutation(t *testing.T) {
	block := types.Block{Columns: []types.Column{intCol("k", 3, 1, 2)}}
	plan, err := planSort(block, nil, nil)
	require.NoError(t, err)
	assert.True(t, plan.AlreadySorted)
	assert.Nil(t, plan.Permutation)
}

func TestPlanSortAlreadySortedSkipsPermutation(t *testing.T) {
	block := types.Block{Columns: []types.Column{intCol("k", 1, 2, 3)}}
	plan, err := planSort(block, types.SortingKey{"k"}, nil)
	require.NoError(t, err)
	assert.True(t, plan.AlreadySorted)
	assert.Nil(t, plan.Permutation)
}

func TestPlanSortComputesStablePermutation(t *testing.T) {
	block := types.Block{Columns: []types.Column{
		intCol("k", 3, 1, 2, 1),
		intCol("seq", 0, 1, 2, 3),
	}}
	plan, err := planSort(block, types.SortingKey{"k"}, nil)
	require.NoError(t, err)
	assert.False(t, plan.AlreadySorted)
	require.NotNil(t, plan.Permutation)

	sorted := plan.Block.Permute(plan.Permutation)
	kCol, _ := sorted.ColumnByName("k")
	seqCol, _ := sorted.ColumnByName("seq")
	assert.Equal(t, []any{int64(1), int64(1), int64(2), int64(3)}, kCol.Values)
	// stable: the two k=1 rows (original seq 1 and 3) keep their relative order.
	assert.Equal(t, []any{int64(1), int64(3), int64(2), int64(0)}, seqCol.Values)
}

func TestPlanSortEvaluatesSkipIndices(t *testing.T) {
	block := types.Block{Columns: []types.Column{intCol("k", 1, 2)}}
	skip := []types.SkipIndex{{
		Name: "k_bloom",
		Expr: types.Expr{ResultName: "k_bloom", Eval: func(b types.Block) (types.Column, error) {
			col, _ := b.ColumnByName("k")
			return types.Column{Type: types.ColumnTypeInt64, Values: col.Values}, nil
		}},
	}}
	plan, err := planSort(block, nil, skip)
	require.NoError(t, err)
	_, ok := plan.Block.ColumnByName("k_bloom")
	assert.True(t, ok)
}
