package partwriter

import (
	"fmt"
	"time"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// accumulateTTLs evaluates every entry's expression over block and
// folds the result into a PartTTLInfos summary. An entry whose
// expression evaluates to a non-temporal value is a LogicalError — TTL
// expressions are declared by the catalog and must always resolve to a
// Date/DateTime kind.
func accumulateTTLs(block types.Block, entries []types.TTLEntry) (types.PartTTLInfos, error) {
	infos := types.NewPartTTLInfos()
	for _, entry := range entries {
		col, err := entry.Expr.Eval(block)
		if err != nil {
			return types.PartTTLInfos{}, errors.Logical("partwriter", "accumulateTTLs",
				fmt.Errorf("evaluate TTL entry %s/%s: %w", entry.Category, entry.Name, err))
		}
		for _, v := range col.Values {
			t, err := ttlValueAsTime(v)
			if err != nil {
				return types.PartTTLInfos{}, errors.Logical("partwriter", "accumulateTTLs",
					fmt.Errorf("TTL entry %s/%s: %w", entry.Category, entry.Name, err))
			}
			infos.Fold(entry, t)
		}
	}
	return infos, nil
}

func ttlValueAsTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("TTL value %v (%T) is not a date/time kind", v, v)
	}
}
