package partwriter

import (
	"sort"

	"mergetree-writer/pkg/types"
)

// sortPlan is the result of planning a block's sort: the block with its
// sorting-key and skip-index expressions evaluated in, the permutation
// required to make it sorted (nil if already sorted or the key is
// empty), and whether a permutation was actually computed (for the
// "already sorted, skip the permutation" metric).
type sortPlan struct {
	Block         types.Block
	Permutation   []int
	AlreadySorted bool
}

// planSort evaluates the sorting key and skip-index expressions into the
// block, then either confirms the block is already sorted by a single
// linear pass or computes a stable permutation. An empty SortingKey
// short-circuits with no permutation at all.
func planSort(block types.Block, key types.SortingKey, skipIndices []types.SkipIndex) (sortPlan, error) {
	augmented := block
	for _, si := range skipIndices {
		col, err := si.Expr.Eval(augmented)
		if err != nil {
			return sortPlan{}, err
		}
		col.Name = si.Expr.ResultName
		augmented = augmented.WithColumn(col)
	}

	if len(key) == 0 {
		return sortPlan{Block: augmented, AlreadySorted: true}, nil
	}

	cols := make([]types.Column, len(key))
	for i, name := range key {
		col, ok := augmented.ColumnByName(name)
		if !ok {
			col = types.Column{Name: name}
		}
		cols[i] = col
	}

	numRows := augmented.NumRows()
	if isSorted(cols, numRows) {
		return sortPlan{Block: augmented, AlreadySorted: true}, nil
	}

	perm := make([]int, numRows)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return lessRows(cols, perm[i], perm[j])
	})
	return sortPlan{Block: augmented, Permutation: perm, AlreadySorted: false}, nil
}

func isSorted(cols []types.Column, numRows int) bool {
	for row := 1; row < numRows; row++ {
		if lessRows(cols, row, row-1) {
			return false
		}
	}
	return true
}

func lessRows(cols []types.Column, a, b int) bool {
	for _, col := range cols {
		cmp := types.Compare(col.Values[a], col.Values[b])
		if cmp != 0 {
			return cmp < 0
		}
	}
	return false
}
