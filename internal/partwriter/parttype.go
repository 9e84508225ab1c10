package partwriter

import "mergetree-writer/pkg/types"

// estimateRowBytes is a coarse per-row byte estimate used only to choose
// a part's physical layout; it need not match the serializer's actual
// output size, only be monotonic in row width and count.
func estimateRowBytes(block types.Block) int64 {
	var bytesPerRow int64
	for _, col := range block.Columns {
		switch col.Type {
		case types.ColumnTypeString, types.ColumnTypeObject:
			bytesPerRow += 32
		case types.ColumnTypeVector:
			bytesPerRow += 4 * 128
		default:
			bytesPerRow += 8
		}
	}
	return bytesPerRow
}

// choosePartType picks InMemory when the row count is at or below the
// configured threshold, else Wide when either the row count or
// estimated byte size clears the corresponding minimum, else Compact.
func choosePartType(block types.Block, minRowsForWide int, minBytesForWide int64, inMemoryRowsThreshold int) types.PartType {
	rows := block.NumRows()
	if inMemoryRowsThreshold > 0 && rows <= inMemoryRowsThreshold {
		return types.PartTypeInMemory
	}
	bytes := estimateRowBytes(block) * int64(rows)
	if (minRowsForWide > 0 && rows >= minRowsForWide) || (minBytesForWide > 0 && bytes >= minBytesForWide) {
		return types.PartTypeWide
	}
	return types.PartTypeCompact
}
