// Package partwriter implements the insert-path pipeline that turns one
// incoming block into one or more on-disk temporary parts: partition
// scattering, sort planning, single-block reduction, TTL accumulation,
// MinMax indexing, space reservation, and projection materialization,
// orchestrated by Writer.Insert and its per-partition writeTempPart.
package partwriter

import (
	"fmt"
	"time"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// namePart builds a part's on-disk name. With FormatVersionV0, the name
// encodes the partition's date range (YYYYMMDD_YYYYMMDD) and requires
// that minDate and maxDate fall in the same month; any other schema
// bearing FormatVersionV0 is a configuration error caught here as a
// LogicalError rather than silently downgrading to v1 naming. Without
// FormatVersionV0, the name uses the partition id directly.
func namePart(schema types.TableSchema, partitionID string, minDate, maxDate time.Time, minBlock, maxBlock, level int64) (string, error) {
	if !schema.FormatVersionV0 {
		return fmt.Sprintf("%s_%d_%d_%d", partitionID, minBlock, maxBlock, level), nil
	}
	if minDate.Year() != maxDate.Year() || minDate.Month() != maxDate.Month() {
		return "", errors.Logical("partwriter", "namePart",
			fmt.Errorf("v0 naming requires a single partition expression spanning one month, got range %s..%s",
				minDate.Format("2006-01-02"), maxDate.Format("2006-01-02")))
	}
	return fmt.Sprintf("%s_%s_%d_%d_%d",
		minDate.Format("20060102"), maxDate.Format("20060102"), minBlock, maxBlock, level), nil
}

// v0PartitionDateRange extracts the min/max over block's first declared
// Date/DateTime column, required before namePart can build a v0 name.
// This is deliberately the raw underlying column, not the partition
// expression's output: a correctly chosen v0 partition expression
// (toYYYYMM-equivalent) always keeps that raw range within one month,
// but a misconfigured, coarser partition expression can group rows
// spanning several months into one partition, which namePart must then
// reject rather than silently truncate. Schemas using FormatVersionV0
// must declare exactly one partition expression; any other shape is a
// configuration error.
func v0PartitionDateRange(schema types.TableSchema, block types.Block) (time.Time, time.Time, error) {
	if len(schema.PartitionKey) != 1 {
		return time.Time{}, time.Time{}, errors.Logical("partwriter", "v0PartitionDateRange",
			fmt.Errorf("v0 naming requires exactly one partition expression, got %d", len(schema.PartitionKey)))
	}
	dateColumn := ""
	for _, c := range schema.Columns {
		if c.Type == types.ColumnTypeDate || c.Type == types.ColumnTypeDateTime {
			dateColumn = c.Name
			break
		}
	}
	if dateColumn == "" {
		return time.Time{}, time.Time{}, errors.Logical("partwriter", "v0PartitionDateRange",
			fmt.Errorf("v0 naming requires a declared Date/DateTime column"))
	}
	minmax := types.ComputeMinMax(block, []string{dateColumn})
	iv, ok := minmax.Intervals[dateColumn]
	if !ok {
		return time.Time{}, time.Time{}, errors.Logical("partwriter", "v0PartitionDateRange",
			fmt.Errorf("no minmax interval for date column %q", dateColumn))
	}
	minT, err := asTime(iv.Min)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Logical("partwriter", "v0PartitionDateRange", err)
	}
	maxT, err := asTime(iv.Max)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Logical("partwriter", "v0PartitionDateRange", err)
	}
	return minT, maxT, nil
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		// Day-number (Date) or unix seconds (DateTime); day-number values
		// are small enough that Unix(t*86400, 0) and Unix(t, 0) never
		// collide in practice, so the two cases share this conversion
		// purely for the purpose of deriving a year/month label.
		if t < 100000 {
			return time.Unix(t*86400, 0).UTC(), nil
		}
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("partition column value %v (%T) is not a date/time kind", v, v)
	}
}
