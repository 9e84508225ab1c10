package partwriter

import (
	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// computeMinMax evaluates the partition key's expressions once over
// block and builds the per-column hyper-rectangle over the resulting
// columns. Called once per produced sub-part, after scattering, over
// that sub-part's rows only.
func computeMinMax(block types.Block, key types.PartitionKey) (types.MinMaxIndex, error) {
	if len(key) == 0 || block.NumRows() == 0 {
		return types.MinMaxIndex{}, nil
	}
	augmented, added, err := types.EvalAll(block, key)
	if err != nil {
		return types.MinMaxIndex{}, errors.Logical("partwriter", "computeMinMax", err)
	}
	return types.ComputeMinMax(augmented, added), nil
}
