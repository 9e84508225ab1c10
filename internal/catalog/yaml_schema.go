package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"mergetree-writer/pkg/types"
)

// yamlSchemaFile is the on-disk declarative table-schema definition. It is
// deliberately narrower than full SQL DDL: it covers exactly the shapes
// the writer needs (partition/TTL expressions as named column functions
// rather than parsed SQL), matching how the catalog service is scoped as
// an external collaborator in the writer's own contract.
type yamlSchemaFile struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name            string            `yaml:"name"`
	Columns         []yamlColumn      `yaml:"columns"`
	PartitionKey    []yamlExprRef     `yaml:"partition_key"`
	SortingKey      []string          `yaml:"sorting_key"`
	SkipIndices     []yamlSkipIndex   `yaml:"skip_indices"`
	TTL             []yamlTTLEntry    `yaml:"ttl"`
	Merging         yamlMergingParams `yaml:"merging"`
	Projections     []yamlProjection  `yaml:"projections"`
	FormatVersionV0 bool              `yaml:"format_version_v0"`
}

type yamlColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlExprRef struct {
	Column   string `yaml:"column"`
	Function string `yaml:"function"`
}

type yamlSkipIndex struct {
	Name string      `yaml:"name"`
	Expr yamlExprRef `yaml:"expr"`
}

type yamlTTLEntry struct {
	Category     string  `yaml:"category"`
	Name         string  `yaml:"name"`
	Column       string  `yaml:"column"`
	Function     string  `yaml:"function"`
	AfterSeconds float64 `yaml:"after_seconds"`
}

type yamlGraphiteRetention struct {
	AgeSeconds int64 `yaml:"age_seconds"`
	Precision  int64 `yaml:"precision"`
}

type yamlGraphiteRule struct {
	PathPattern string                  `yaml:"path_pattern"`
	Retentions  []yamlGraphiteRetention `yaml:"retentions"`
	Aggregation string                  `yaml:"aggregation"`
}

type yamlMergingParams struct {
	Mode                string             `yaml:"mode"`
	VersionColumn       string             `yaml:"version_column"`
	SignColumn          string             `yaml:"sign_column"`
	ColumnsToSum        []string           `yaml:"columns_to_sum"`
	PartitionColumns    []string           `yaml:"partition_columns"`
	GraphiteRules       []yamlGraphiteRule `yaml:"graphite_rules"`
	GraphitePathColumn  string             `yaml:"graphite_path_column"`
	GraphiteTimeColumn  string             `yaml:"graphite_time_column"`
	GraphiteValueColumn string             `yaml:"graphite_value_column"`

	// Options holds merging-param fields not modeled above (forward
	// compatibility for algorithm-specific settings added to
	// types.MergingParams later); decoded with mapstructure rather than
	// requiring a new yaml struct field and resolver branch per addition.
	Options map[string]any `yaml:"options"`
}

type yamlProjection struct {
	Name            string            `yaml:"name"`
	Type            string            `yaml:"type"`
	Columns         []yamlColumn      `yaml:"columns"`
	SortingKey      []string          `yaml:"sorting_key"`
	Merging         yamlMergingParams `yaml:"merging"`
	EmbeddingColumn string            `yaml:"embedding_column"`
}

// LoadTableSchemas reads path and resolves it into the writer's native
// TableSchema values, with GraphiteNow stamped to now for every Graphite
// table: retention age is relative to call time, not a frozen
// schema-load time, so this is only a seed value that the writer
// replaces with the current time on every insert it reduces.
func LoadTableSchemas(path string) (map[string]types.TableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	var file yamlSchemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	out := make(map[string]types.TableSchema, len(file.Tables))
	for _, t := range file.Tables {
		schema, err := resolveTable(t)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		out[t.Name] = schema
	}
	return out, nil
}

func resolveTable(t yamlTable) (types.TableSchema, error) {
	columns := make([]types.Column, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = types.Column{Name: c.Name, Type: types.ColumnType(c.Type)}
	}

	partitionKey, err := resolveExprRefs(t.PartitionKey)
	if err != nil {
		return types.TableSchema{}, fmt.Errorf("partition_key: %w", err)
	}

	skipIndices := make([]types.SkipIndex, len(t.SkipIndices))
	for i, s := range t.SkipIndices {
		expr, err := resolveExprRef(s.Expr)
		if err != nil {
			return types.TableSchema{}, fmt.Errorf("skip_indices[%d]: %w", i, err)
		}
		expr.ResultName = s.Name
		skipIndices[i] = types.SkipIndex{Name: s.Name, Expr: expr}
	}

	ttlEntries, err := resolveTTLEntries(t.TTL)
	if err != nil {
		return types.TableSchema{}, err
	}

	merging, err := resolveMerging(t.Merging)
	if err != nil {
		return types.TableSchema{}, fmt.Errorf("merging: %w", err)
	}

	projections := make([]types.Projection, len(t.Projections))
	for i, p := range t.Projections {
		proj, err := resolveProjection(p)
		if err != nil {
			return types.TableSchema{}, fmt.Errorf("projections[%d]: %w", i, err)
		}
		projections[i] = proj
	}

	return types.TableSchema{
		TableName:       t.Name,
		Columns:         columns,
		PartitionKey:    types.PartitionKey(partitionKey),
		SortingKey:      types.SortingKey(t.SortingKey),
		SkipIndices:     skipIndices,
		TTLEntries:      ttlEntries,
		Projections:     projections,
		MergingParams:   merging,
		FormatVersionV0: t.FormatVersionV0,
	}, nil
}

func resolveExprRef(ref yamlExprRef) (types.Expr, error) {
	fn, err := resolveColumnFunc(ref.Function)
	if err != nil {
		return types.Expr{}, err
	}
	return fn(ref.Column), nil
}

func resolveExprRefs(refs []yamlExprRef) ([]types.Expr, error) {
	out := make([]types.Expr, len(refs))
	for i, r := range refs {
		expr, err := resolveExprRef(r)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = expr
	}
	return out, nil
}

func resolveTTLEntries(entries []yamlTTLEntry) ([]types.TTLEntry, error) {
	out := make([]types.TTLEntry, len(entries))
	for i, e := range entries {
		base, err := resolveExprRef(yamlExprRef{Column: e.Column, Function: e.Function})
		if err != nil {
			return nil, fmt.Errorf("ttl[%d]: %w", i, err)
		}
		delay := time.Duration(e.AfterSeconds * float64(time.Second))
		expr := addDuration(base, delay)
		expr.ResultName = e.Name
		out[i] = types.TTLEntry{
			Category: types.TTLCategory(e.Category),
			Name:     e.Name,
			Expr:     expr,
		}
	}
	return out, nil
}

// addDuration wraps a base time-valued expression, converting its Date/
// DateTime result to time.Time and adding delay, matching how TTL
// expressions in the original system are always "column + INTERVAL".
func addDuration(base types.Expr, delay time.Duration) types.Expr {
	return types.Expr{
		ResultName: base.ResultName,
		Eval: func(b types.Block) (types.Column, error) {
			col, err := base.Eval(b)
			if err != nil {
				return types.Column{}, err
			}
			out := make([]any, len(col.Values))
			for i, v := range col.Values {
				sec, err := toUnixSeconds(v)
				if err != nil {
					return types.Column{}, err
				}
				out[i] = time.Unix(sec, 0).UTC().Add(delay)
			}
			return types.Column{Type: types.ColumnTypeDateTime, Values: out}, nil
		},
	}
}

func resolveMerging(m yamlMergingParams) (types.MergingParams, error) {
	rules := make([]types.GraphiteRule, len(m.GraphiteRules))
	for i, r := range m.GraphiteRules {
		retentions := make([]types.GraphiteRetention, len(r.Retentions))
		for j, ret := range r.Retentions {
			retentions[j] = types.GraphiteRetention{AgeSeconds: ret.AgeSeconds, Precision: ret.Precision}
		}
		rules[i] = types.GraphiteRule{PathPattern: r.PathPattern, Retentions: retentions, Aggregation: r.Aggregation}
	}
	mode := m.Mode
	if mode == "" {
		mode = string(types.MergingOrdinary)
	}
	params := types.MergingParams{
		Mode:                types.MergingAlgorithm(mode),
		VersionColumn:       m.VersionColumn,
		SignColumn:          m.SignColumn,
		ColumnsToSum:        m.ColumnsToSum,
		PartitionColumns:    m.PartitionColumns,
		GraphiteRules:       rules,
		GraphitePathColumn:  m.GraphitePathColumn,
		GraphiteTimeColumn:  m.GraphiteTimeColumn,
		GraphiteValueColumn: m.GraphiteValueColumn,
		GraphiteNow:         time.Now().UTC(),
	}
	if err := decodeMergingOptions(m.Options, &params); err != nil {
		return types.MergingParams{}, fmt.Errorf("options: %w", err)
	}
	return params, nil
}

// decodeMergingOptions overlays options onto params via mapstructure,
// letting a schema file set or override any types.MergingParams field
// (matched by its mapstructure tag) without a dedicated yamlMergingParams
// field and resolveMerging branch for every future merging-param addition.
// GraphiteNow is excluded (tagged "-") since it is always call-time, not
// schema-configurable.
func decodeMergingOptions(options map[string]any, params *types.MergingParams) error {
	if len(options) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           params,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

func resolveProjection(p yamlProjection) (types.Projection, error) {
	columns := make([]types.Column, len(p.Columns))
	for i, c := range p.Columns {
		columns[i] = types.Column{Name: c.Name, Type: types.ColumnType(c.Type)}
	}
	merging, err := resolveMerging(p.Merging)
	if err != nil {
		return types.Projection{}, err
	}
	projType := types.ProjectionNormal
	if p.Type == string(types.ProjectionAggregate) {
		projType = types.ProjectionAggregate
	}
	return types.Projection{
		Name:       p.Name,
		Type:       projType,
		Columns:    columns,
		SortingKey:    types.SortingKey(p.SortingKey),
		MergingParams: merging,
		Calculate: func(main types.Block) (types.Block, error) {
			// A Normal projection with an identical column set to the
			// main block is a pure re-sort; any other derivation needs
			// Calculate assigned on the loaded types.Projection.
			return main, nil
		},
		EmbeddingColumn: p.EmbeddingColumn,
	}, nil
}
