package adminapi

import (
	"encoding/json"
	"fmt"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// wireBlock is the JSON representation of a types.Block accepted on the
// insert endpoint: one entry per column, values decoded according to the
// column's declared type in the table's schema rather than trusted
// as-is from the request body.
type wireBlock struct {
	Columns []wireColumn `json:"columns"`
}

type wireColumn struct {
	Name   string            `json:"name"`
	Values []json.RawMessage `json:"values"`
}

// decodeBlock converts a wireBlock into a types.Block, coercing each
// column's raw JSON values according to the type schema declares for
// that column name. Columns present in the wire payload but absent from
// schema are rejected as a SchemaMismatch; columns declared but missing
// from the payload are simply omitted from the resulting block.
func decodeBlock(wb wireBlock, schema types.TableSchema) (types.Block, error) {
	declared := make(map[string]types.ColumnType, len(schema.Columns))
	for _, c := range schema.Columns {
		declared[c.Name] = c.Type
	}

	cols := make([]types.Column, 0, len(wb.Columns))
	var rowCount = -1
	for _, wc := range wb.Columns {
		ct, ok := declared[wc.Name]
		if !ok {
			return types.Block{}, errors.SchemaMismatch("adminapi", "decodeBlock",
				fmt.Errorf("column %q not declared on table %q", wc.Name, schema.TableName))
		}
		if rowCount == -1 {
			rowCount = len(wc.Values)
		} else if len(wc.Values) != rowCount {
			return types.Block{}, errors.SchemaMismatch("adminapi", "decodeBlock",
				fmt.Errorf("column %q has %d values, expected %d", wc.Name, len(wc.Values), rowCount))
		}

		values, err := decodeValues(wc.Values, ct)
		if err != nil {
			return types.Block{}, errors.SchemaMismatch("adminapi", "decodeBlock",
				fmt.Errorf("column %q: %w", wc.Name, err))
		}
		cols = append(cols, types.Column{Name: wc.Name, Type: ct, Values: values})
	}
	return types.Block{Columns: cols}, nil
}

func decodeValues(raw []json.RawMessage, ct types.ColumnType) ([]any, error) {
	out := make([]any, len(raw))
	for i, r := range raw {
		v, err := decodeValue(r, ct)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func decodeValue(raw json.RawMessage, ct types.ColumnType) (any, error) {
	switch ct {
	case types.ColumnTypeInt64, types.ColumnTypeUInt64, types.ColumnTypeDate, types.ColumnTypeDateTime:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case types.ColumnTypeFloat64:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case types.ColumnTypeString, types.ColumnTypeObject:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case types.ColumnTypeBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case types.ColumnTypeVector:
		var v []float32
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported wire type %q", ct)
	}
}

// partSummary is the JSON shape returned to callers for each
// part an insert produced.
type partSummary struct {
	Name        string `json:"name"`
	PartitionID string `json:"partition_id"`
	RowCount    int    `json:"row_count"`
	PartType    string `json:"part_type"`
	UUID        string `json:"uuid,omitempty"`
	Projections int    `json:"projections"`
}

func summarize(d types.PartDescriptor) partSummary {
	return partSummary{
		Name:        d.Name,
		PartitionID: d.PartitionID,
		RowCount:    d.RowCount,
		PartType:    string(d.PartType),
		UUID:        d.UUID,
		Projections: len(d.Projections),
	}
}
