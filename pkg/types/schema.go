package types

import "time"

// PartitionKey is an ordered list of expressions over block columns;
// evaluating them yields a partition tuple per row.
type PartitionKey []Expr

// SortingKey is an ordered list of column names defining lexicographic
// ordering within a part. May be empty (no sort).
type SortingKey []string

// PartitionTuple is an ordered list of partition-column values for one
// row or one sub-block. Two rows belong to the same partition iff their
// partition tuples are equal.
type PartitionTuple []any

// Key returns a comparable string suitable for map grouping. Partition
// tuples are small (typically 1-3 columns) so this is cheap relative to
// hashing the whole block.
func (p PartitionTuple) Key() string {
	out := make([]byte, 0, 32)
	for i, v := range p {
		if i > 0 {
			out = append(out, '\x1f')
		}
		out = appendValue(out, v)
	}
	return string(out)
}

func appendValue(out []byte, v any) []byte {
	switch t := v.(type) {
	case string:
		return append(out, t...)
	case []byte:
		return append(out, t...)
	default:
		return append(out, []byte(formatAny(v))...)
	}
}

// MergingAlgorithm names one of the seven single-block reduction
// strategies.
type MergingAlgorithm string

const (
	MergingOrdinary            MergingAlgorithm = "Ordinary"
	MergingReplacing           MergingAlgorithm = "Replacing"
	MergingCollapsing          MergingAlgorithm = "Collapsing"
	MergingSumming             MergingAlgorithm = "Summing"
	MergingAggregating         MergingAlgorithm = "Aggregating"
	MergingVersionedCollapsing MergingAlgorithm = "VersionedCollapsing"
	MergingGraphite            MergingAlgorithm = "Graphite"
)

// GraphiteRetention selects a rollup precision (seconds) for rows older
// than AgeSeconds at call time.
type GraphiteRetention struct {
	AgeSeconds int64 `mapstructure:"age_seconds"`
	Precision  int64 `mapstructure:"precision"`
}

// GraphiteRule matches a metric-path pattern to a retention ladder and an
// aggregation function name ("sum", "avg", "max", "min", "last").
type GraphiteRule struct {
	PathPattern string              `mapstructure:"path_pattern"`
	Retentions  []GraphiteRetention `mapstructure:"retentions"`
	Aggregation string              `mapstructure:"aggregation"`
}

// MergingParams is the tagged-variant payload for MergingAlgorithm: only
// the fields relevant to Mode are populated.
type MergingParams struct {
	Mode MergingAlgorithm `mapstructure:"mode"`

	// Replacing
	VersionColumn string `mapstructure:"version_column"` // optional

	// Collapsing / VersionedCollapsing
	SignColumn string `mapstructure:"sign_column"`

	// Summing
	ColumnsToSum     []string `mapstructure:"columns_to_sum"`
	PartitionColumns []string `mapstructure:"partition_columns"`

	// Graphite
	GraphiteRules       []GraphiteRule `mapstructure:"graphite_rules"`
	GraphitePathColumn  string         `mapstructure:"graphite_path_column"`
	GraphiteTimeColumn  string         `mapstructure:"graphite_time_column"`
	GraphiteValueColumn string         `mapstructure:"graphite_value_column"`
	GraphiteNow         time.Time      `mapstructure:"-"`
}

// TTLCategory names one of the six TTL groupings tracked per part.
type TTLCategory string

const (
	TTLCategoryRows          TTLCategory = "rows"
	TTLCategoryGroupBy       TTLCategory = "group_by"
	TTLCategoryRowsWhere     TTLCategory = "rows_where"
	TTLCategoryColumns       TTLCategory = "columns"
	TTLCategoryRecompression TTLCategory = "recompression"
	TTLCategoryMove          TTLCategory = "move"
)

// updatesPartWideRows reports whether entries in this category also
// fold into the part-wide rows-TTL summary.
func (c TTLCategory) updatesPartWideRows() bool {
	switch c {
	case TTLCategoryRows, TTLCategoryGroupBy, TTLCategoryRowsWhere, TTLCategoryColumns:
		return true
	default:
		return false
	}
}

// TTLEntry is one TTL expression within a category. Name identifies the
// entry within its category (a column name for Columns, a result
// identifier otherwise).
type TTLEntry struct {
	Category TTLCategory
	Name     string
	Expr     Expr
}

// SkipIndex is an auxiliary index expression evaluated alongside the
// sorting key; the writer does not build the index itself (that is the
// serializer's job) but must evaluate its expression so the resulting
// column exists in the block handed to the serializer.
type SkipIndex struct {
	Name string
	Expr Expr
}

// ProjectionType distinguishes a plain precomputed view from one that
// forces Aggregating semantics regardless of the table's merging mode.
type ProjectionType string

const (
	ProjectionNormal    ProjectionType = "Normal"
	ProjectionAggregate ProjectionType = "Aggregate"
)

// Projection is an auxiliary view definition. Calculate derives the
// projection's block from the already-reduced main block; Columns
// describes the projection's own schema for the child writer.
type Projection struct {
	Name          string
	Type          ProjectionType
	Columns       []Column
	SortingKey    SortingKey
	MergingParams MergingParams
	Calculate     func(main Block) (Block, error)

	// EmbeddingColumn, if non-empty, names a Vector column in this
	// projection's schema that should be mirrored into the vector index
	// sink (internal/vectorindex) after reduction.
	EmbeddingColumn string
}

// TableSchema is the schema-snapshot collaborator: everything the
// writer needs to know about a table to run one insert.
type TableSchema struct {
	TableName     string
	Columns       []Column // name + declared type; Values unused
	PartitionKey  PartitionKey
	SortingKey    SortingKey
	SkipIndices   []SkipIndex
	TTLEntries    []TTLEntry
	Projections   []Projection
	MergingParams MergingParams

	// FormatVersionV0 selects the legacy v0 naming scheme; when true,
	// PartitionKey must contain exactly one Date/DateTime expression.
	FormatVersionV0 bool
}
