package partwriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	writererrors "mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

func rowCountBlock(n int) types.Block {
	ks := make([]any, n)
	for i := range ks {
		ks[i] = int64(i)
	}
	return types.Block{Columns: []types.Column{
		{Name: "k", Type: types.ColumnTypeInt64, Values: ks},
	}}
}

func TestScatterNoPartitionKeyReturnsOriginalBlock(t *testing.T) {
	block := rowCountBlock(3)
	out, err := scatter(block, nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, block, out[0].Block)
	assert.Empty(t, out[0].Partition)
}

func evenOddKey() types.PartitionKey {
	return types.PartitionKey{{
		ResultName: "parity",
		Eval: func(b types.Block) (types.Column, error) {
			col, _ := b.ColumnByName("k")
			out := make([]any, len(col.Values))
			for i, v := range col.Values {
				out[i] = v.(int64) % 2
			}
			return types.Column{Type: types.ColumnTypeInt64, Values: out}, nil
		},
	}}
}

func TestScatterSinglePartitionReturnsOriginalBlock(t *testing.T) {
	block := rowCountBlock(4) // all even mod 4? k=0,1,2,3 -> mod2 varies, use all-even input instead
	block = types.Block{Columns: []types.Column{
		{Name: "k", Type: types.ColumnTypeInt64, Values: []any{int64(0), int64(2), int64(4)}},
	}}
	out, err := scatter(block, evenOddKey(), 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, block, out[0].Block)
}

func TestScatterMultiplePartitionsByDiscoveryOrder(t *testing.T) {
	block := rowCountBlock(4) // k = 0,1,2,3 -> parity 0,1,0,1
	out, err := scatter(block, evenOddKey(), 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	col0, _ := out[0].Block.ColumnByName("k")
	assert.Equal(t, []any{int64(0), int64(2)}, col0.Values)
	col1, _ := out[1].Block.ColumnByName("k")
	assert.Equal(t, []any{int64(1), int64(3)}, col1.Values)
}

func TestScatterTooManyPartsFails(t *testing.T) {
	block := rowCountBlock(4)
	key := types.PartitionKey{{
		ResultName: "k_copy",
		Eval: func(b types.Block) (types.Column, error) {
			col, _ := b.ColumnByName("k")
			return types.Column{Type: types.ColumnTypeInt64, Values: col.Values}, nil
		},
	}}
	_, err := scatter(block, key, 2)
	require.Error(t, err)
	we, ok := writererrors.AsWriterError(err)
	require.True(t, ok)
	assert.Equal(t, writererrors.KindTooManyParts, we.Kind)
}

func TestPartitionDirIDStableForEqualTuples(t *testing.T) {
	a := types.PartitionTuple{int64(1), "x"}
	b := types.PartitionTuple{int64(1), "x"}
	assert.Equal(t, partitionDirID(a), partitionDirID(b))
}

func TestPartitionDirIDEmptyTupleIsAll(t *testing.T) {
	assert.Equal(t, "all", partitionDirID(nil))
}
