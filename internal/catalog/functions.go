package catalog

import (
	"fmt"
	"time"

	"mergetree-writer/pkg/types"
)

// columnFunc builds an types.Expr that reads one source column and applies
// a named transform, used to translate the declarative YAML schema into
// the closures the writer evaluates. The writer itself never parses an
// expression language; this registry is the catalog's own small,
// fixed vocabulary of partition/TTL functions, standing in for the
// general SQL expression evaluator named as an external collaborator.
type columnFunc func(source string) types.Expr

var columnFuncs = map[string]columnFunc{
	"identity":   identityFunc,
	"toDate":     toDateFunc,
	"toYYYYMM":   toYYYYMMFunc,
	"toYYYYMMDD": toYYYYMMDDFunc,
}

func identityFunc(source string) types.Expr {
	return types.Expr{
		ResultName: source,
		Eval: func(b types.Block) (types.Column, error) {
			col, ok := b.ColumnByName(source)
			if !ok {
				return types.Column{}, fmt.Errorf("column %q not found", source)
			}
			return col, nil
		},
	}
}

// toDateFunc truncates a DateTime (unix seconds) column down to a day
// number, matching the engine's Date column representation.
func toDateFunc(source string) types.Expr {
	return types.Expr{
		ResultName: "toDate(" + source + ")",
		Eval: func(b types.Block) (types.Column, error) {
			col, ok := b.ColumnByName(source)
			if !ok {
				return types.Column{}, fmt.Errorf("column %q not found", source)
			}
			out := make([]any, len(col.Values))
			for i, v := range col.Values {
				sec, err := toUnixSeconds(v)
				if err != nil {
					return types.Column{}, err
				}
				out[i] = sec / 86400
			}
			return types.Column{Type: types.ColumnTypeDate, Values: out}, nil
		},
	}
}

func toYYYYMMFunc(source string) types.Expr {
	return partitionTimeFunc(source, "toYYYYMM", "2006-01")
}

func toYYYYMMDDFunc(source string) types.Expr {
	return partitionTimeFunc(source, "toYYYYMMDD", "2006-01-02")
}

func partitionTimeFunc(source, name, layout string) types.Expr {
	return types.Expr{
		ResultName: name + "(" + source + ")",
		Eval: func(b types.Block) (types.Column, error) {
			col, ok := b.ColumnByName(source)
			if !ok {
				return types.Column{}, fmt.Errorf("column %q not found", source)
			}
			out := make([]any, len(col.Values))
			for i, v := range col.Values {
				sec, err := toUnixSeconds(v)
				if err != nil {
					return types.Column{}, err
				}
				t := time.Unix(sec, 0).UTC()
				key, err := stripLayout(t, layout)
				if err != nil {
					return types.Column{}, err
				}
				out[i] = key
			}
			return types.Column{Type: types.ColumnTypeInt64, Values: out}, nil
		},
	}
}

func stripLayout(t time.Time, layout string) (int64, error) {
	switch layout {
	case "2006-01":
		return int64(t.Year()*100 + int(t.Month())), nil
	case "2006-01-02":
		return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day()), nil
	default:
		return 0, fmt.Errorf("unsupported partition layout %q", layout)
	}
}

func toUnixSeconds(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case time.Time:
		return t.Unix(), nil
	default:
		return 0, fmt.Errorf("cannot interpret %T as a timestamp", v)
	}
}

// resolveColumnFunc looks up a named function, defaulting to identity when
// unspecified.
func resolveColumnFunc(name string) (columnFunc, error) {
	if name == "" {
		name = "identity"
	}
	fn, ok := columnFuncs[name]
	if !ok {
		return nil, fmt.Errorf("unknown column function %q", name)
	}
	return fn, nil
}
