package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTooManyParts(t *testing.T) {
	err := TooManyParts("partition_scatterer", 3, 4)
	require.Error(t, err)
	assert.Equal(t, KindTooManyParts, err.Kind)
	assert.False(t, err.Retryable())
	assert.Contains(t, err.Error(), "TOO_MANY_PARTS")
	assert.Equal(t, 3, err.Context.Metadata["max_parts"])
	assert.Equal(t, 4, err.Context.Metadata["discovered"])
}

func TestIsAndAsWriterError(t *testing.T) {
	base := errors.New("disk full")
	wrapped := fmt.Errorf("reserve volume: %w", Reservation("space_reserver", "reserve", base))

	assert.True(t, Is(wrapped, KindReservationFailure))
	assert.False(t, Is(wrapped, KindIOError))

	we, ok := AsWriterError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindReservationFailure, we.Kind)
	assert.True(t, we.Retryable())
	assert.ErrorIs(t, we, base)
}

func TestLogicalErrorNotRetryable(t *testing.T) {
	err := Logical("single_block_reducer", "step", errors.New("unexpected third step"))
	assert.False(t, err.Retryable())
	assert.Equal(t, KindLogicalError, err.Kind)
}
