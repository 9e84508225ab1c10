package partwriter

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// partitionDirID derives a filesystem-safe partition id for part naming
// from a partition tuple: "all" for an unpartitioned table, else a hex
// digest of the tuple's comparable key (PartitionTuple.Key can contain
// arbitrary bytes, e.g. from a String partition column).
func partitionDirID(tuple types.PartitionTuple) string {
	if len(tuple) == 0 {
		return "all"
	}
	sum, err := hashTuple(tuple)
	if err != nil {
		return hex.EncodeToString([]byte(tuple.Key()))
	}
	return hex.EncodeToString([]byte(sum))
}

// scattered is one sub-block produced by scatter, paired with the
// partition tuple every row in it shares.
type scattered struct {
	Block     types.Block
	Partition types.PartitionTuple
}

// scatter splits block into one sub-block per distinct partition tuple,
// in discovery order, failing with TooManyParts the moment a
// (maxParts+1)-th distinct partition is discovered. An empty
// PartitionKey returns the block unchanged, paired with an empty tuple.
// maxParts <= 0 disables the limit.
func scatter(block types.Block, key types.PartitionKey, maxParts int) ([]scattered, error) {
	if len(key) == 0 {
		return []scattered{{Block: block, Partition: types.PartitionTuple{}}}, nil
	}

	augmented, added, err := types.EvalAll(block, key)
	if err != nil {
		return nil, errors.Logical("partwriter", "scatter", err)
	}

	numRows := block.NumRows()
	order := make([]string, 0, 4)
	buckets := make(map[string][]int, 4)
	tuples := make(map[string]types.PartitionTuple, 4)

	for row := 0; row < numRows; row++ {
		tuple := make(types.PartitionTuple, len(added))
		for i, name := range added {
			col, _ := augmented.ColumnByName(name)
			tuple[i] = col.Values[row]
		}
		hashKey, err := hashTuple(tuple)
		if err != nil {
			return nil, errors.Logical("partwriter", "scatter", err)
		}
		if _, seen := buckets[hashKey]; !seen {
			order = append(order, hashKey)
			tuples[hashKey] = tuple
			if maxParts > 0 && len(order) > maxParts {
				return nil, errors.TooManyParts("partwriter", maxParts, len(order))
			}
		}
		buckets[hashKey] = append(buckets[hashKey], row)
	}

	if len(order) == 1 {
		return []scattered{{Block: block, Partition: tuples[order[0]]}}, nil
	}

	out := make([]scattered, 0, len(order))
	for _, hashKey := range order {
		out = append(out, scattered{
			Block:     block.Select(buckets[hashKey]),
			Partition: tuples[hashKey],
		})
	}
	return out, nil
}

// hashTuple computes a 128-bit blake2b digest over tuple's values,
// stringified, used purely as a grouping key: two rows whose partition
// tuples are genuinely equal always land in the same bucket, and a
// collision between genuinely distinct tuples is cryptographically
// implausible at 128 bits.
func hashTuple(tuple types.PartitionTuple) (string, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	for i, v := range tuple {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		fmt.Fprintf(h, "%v", v)
	}
	return string(h.Sum(nil)), nil
}
