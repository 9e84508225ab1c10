package types

import "time"

// TTLInfo is the {min_timestamp, max_timestamp} summary for one TTL
// expression result, in unix-seconds semantics regardless of whether the
// underlying column was day-number or datetime valued.
type TTLInfo struct {
	Min time.Time
	Max time.Time
	set bool
}

// Update folds v into the summary's min/max.
func (t *TTLInfo) Update(v time.Time) {
	if !t.set {
		t.Min, t.Max = v, v
		t.set = true
		return
	}
	if v.Before(t.Min) {
		t.Min = v
	}
	if v.After(t.Max) {
		t.Max = v
	}
}

// IsSet reports whether any row has been folded into this summary.
func (t TTLInfo) IsSet() bool { return t.set }

// PartTTLInfos aggregates every TTL category observed while writing one
// part, plus the part-wide min/max over rows-category entries.
type PartTTLInfos struct {
	Rows          TTLInfo
	GroupBy       map[string]TTLInfo
	RowsWhere     map[string]TTLInfo
	Columns       map[string]TTLInfo
	Recompression map[string]TTLInfo
	Move          map[string]TTLInfo
}

// NewPartTTLInfos returns an empty, ready-to-fold PartTTLInfos.
func NewPartTTLInfos() PartTTLInfos {
	return PartTTLInfos{
		GroupBy:       make(map[string]TTLInfo),
		RowsWhere:     make(map[string]TTLInfo),
		Columns:       make(map[string]TTLInfo),
		Recompression: make(map[string]TTLInfo),
		Move:          make(map[string]TTLInfo),
	}
}

// Fold updates the category map (or the singleton Rows field) for entry
// and, when the category contributes to the part-wide rows summary,
// updates Rows too.
func (p *PartTTLInfos) Fold(entry TTLEntry, v time.Time) {
	switch entry.Category {
	case TTLCategoryRows:
		p.Rows.Update(v)
		return
	case TTLCategoryGroupBy:
		foldInto(p.GroupBy, entry.Name, v)
	case TTLCategoryRowsWhere:
		foldInto(p.RowsWhere, entry.Name, v)
	case TTLCategoryColumns:
		foldInto(p.Columns, entry.Name, v)
	case TTLCategoryRecompression:
		foldInto(p.Recompression, entry.Name, v)
	case TTLCategoryMove:
		foldInto(p.Move, entry.Name, v)
	}
	if entry.Category.updatesPartWideRows() {
		p.Rows.Update(v)
	}
}

func foldInto(m map[string]TTLInfo, name string, v time.Time) {
	info := m[name]
	info.Update(v)
	m[name] = info
}
