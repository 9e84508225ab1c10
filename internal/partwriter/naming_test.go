package partwriter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	writererrors "mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

func TestNamePartV1(t *testing.T) {
	schema := types.TableSchema{}
	name, err := namePart(schema, "abc123", time.Time{}, time.Time{}, 5, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, "abc123_5_5_0", name)
}

func TestNamePartV0SameMonth(t *testing.T) {
	schema := types.TableSchema{FormatVersionV0: true}
	minDate := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)
	name, err := namePart(schema, "202401", minDate, maxDate, 7, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, "20240103_20240128_7_7_0", name)
}

func TestNamePartV0CrossMonthFails(t *testing.T) {
	schema := types.TableSchema{FormatVersionV0: true}
	minDate := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	_, err := namePart(schema, "x", minDate, maxDate, 1, 1, 0)
	require.Error(t, err)
	we, ok := writererrors.AsWriterError(err)
	require.True(t, ok)
	assert.Equal(t, writererrors.KindLogicalError, we.Kind)
}

func TestV0PartitionDateRangeRequiresSingleExpression(t *testing.T) {
	schema := types.TableSchema{
		FormatVersionV0: true,
		PartitionKey: types.PartitionKey{
			{ResultName: "a"},
			{ResultName: "b"},
		},
	}
	_, _, err := v0PartitionDateRange(schema, types.Block{})
	require.Error(t, err)
}

func TestV0PartitionDateRangeFindsDeclaredDateColumn(t *testing.T) {
	schema := types.TableSchema{
		FormatVersionV0: true,
		PartitionKey:    types.PartitionKey{{ResultName: "year"}},
		Columns:         []types.Column{{Name: "t", Type: types.ColumnTypeDateTime}},
	}
	jan := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC).Unix()
	feb := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC).Unix()
	block := types.Block{Columns: []types.Column{
		{Name: "t", Type: types.ColumnTypeDateTime, Values: []any{jan, feb}},
	}}
	minT, maxT, err := v0PartitionDateRange(schema, block)
	require.NoError(t, err)
	assert.Equal(t, time.January, minT.Month())
	assert.Equal(t, time.February, maxT.Month())
}
