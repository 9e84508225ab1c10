package partwriter

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"mergetree-writer/internal/errors"
	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

// mergeStepResult is one step's outcome in the two-step merge protocol
// every merging algorithm below implements, mirroring the multi-source
// merge FSM the algorithms are modeled on even though a single-block
// reduction only ever has one source.
type mergeStepResult struct {
	RequiredSource int
	IsFinished     bool
	Output         types.Block
}

// mergingAlgorithm consumes a block in its first Step call and emits the
// reduced block in its second.
type mergingAlgorithm interface {
	Step(input *types.Block) (mergeStepResult, error)
}

// reduceBlock instantiates the algorithm named by params.Mode and
// drives it through exactly two Step calls, applying permutation (the
// sort planner's output, now consumed) before the first Step. Any
// deviation from the required (requiredSource==0, !isFinished) then
// (isFinished) shape is an internal invariant violation.
func reduceBlock(block types.Block, permutation []int, sortKey types.SortingKey, params types.MergingParams, logger logging.Logger) (types.Block, error) {
	if permutation != nil {
		block = block.Permute(permutation)
	}
	algo, err := newMergingAlgorithm(sortKey, params, logger)
	if err != nil {
		return types.Block{}, err
	}

	first, err := algo.Step(&block)
	if err != nil {
		return types.Block{}, err
	}
	if first.RequiredSource != 0 || first.IsFinished {
		return types.Block{}, errors.Logical("partwriter", "reduceBlock",
			fmt.Errorf("merge step 1 protocol violation: requiredSource=%d isFinished=%v", first.RequiredSource, first.IsFinished))
	}

	second, err := algo.Step(nil)
	if err != nil {
		return types.Block{}, err
	}
	if !second.IsFinished {
		return types.Block{}, errors.Logical("partwriter", "reduceBlock",
			fmt.Errorf("merge step 2 protocol violation: expected isFinished=true"))
	}
	return second.Output, nil
}

func newMergingAlgorithm(sortKey types.SortingKey, params types.MergingParams, logger logging.Logger) (mergingAlgorithm, error) {
	switch params.Mode {
	case types.MergingOrdinary, "":
		return &ordinaryAlgorithm{}, nil
	case types.MergingReplacing:
		return &replacingAlgorithm{sortKey: sortKey, versionColumn: params.VersionColumn}, nil
	case types.MergingCollapsing:
		return &collapsingAlgorithm{sortKey: sortKey, signColumn: params.SignColumn, logger: logger}, nil
	case types.MergingSumming:
		groupBy := params.PartitionColumns
		if len(groupBy) == 0 {
			groupBy = sortKey
		}
		return &summingAlgorithm{groupBy: groupBy, columnsToSum: params.ColumnsToSum}, nil
	case types.MergingAggregating:
		return &aggregatingAlgorithm{sortKey: sortKey}, nil
	case types.MergingVersionedCollapsing:
		return &versionedCollapsingAlgorithm{sortKey: sortKey, signColumn: params.SignColumn, versionColumn: params.VersionColumn}, nil
	case types.MergingGraphite:
		return &graphiteAlgorithm{params: params, logger: logger}, nil
	default:
		return nil, errors.Logical("partwriter", "newMergingAlgorithm", fmt.Errorf("unknown merging mode %q", params.Mode))
	}
}

func rowKey(block types.Block, names []string, row int) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		col, ok := block.ColumnByName(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%v", col.Values[row])
	}
	return b.String()
}

// --- Ordinary: pass-through, no grouping. ---

type ordinaryAlgorithm struct {
	pending types.Block
}

func (a *ordinaryAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = *input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	return mergeStepResult{IsFinished: true, Output: a.pending}, nil
}

// --- Replacing: keep the row with max version per sort-key class, or
// the last row in input order when there is no version column. ---

type replacingAlgorithm struct {
	sortKey       types.SortingKey
	versionColumn string
	pending       *types.Block
}

func (a *replacingAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	block := *a.pending
	order := []string{}
	best := map[string]int{}
	for row := 0; row < block.NumRows(); row++ {
		key := rowKey(block, []string(a.sortKey), row)
		cur, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = row
			continue
		}
		if a.versionColumn == "" {
			best[key] = row // last one wins
			continue
		}
		verCol, ok := block.ColumnByName(a.versionColumn)
		if !ok {
			best[key] = row
			continue
		}
		if types.Compare(verCol.Values[row], verCol.Values[cur]) >= 0 {
			best[key] = row
		}
	}
	indices := make([]int, 0, len(order))
	for _, key := range order {
		indices = append(indices, best[key])
	}
	return mergeStepResult{IsFinished: true, Output: block.Select(indices)}, nil
}

// --- Collapsing: cancel +1/-1 sign pairs per sort-key class; a class
// holding both signs that does not cancel to zero is logged as an
// anomaly. ---

type collapsingAlgorithm struct {
	sortKey    types.SortingKey
	signColumn string
	logger     logging.Logger
	pending    *types.Block
}

func (a *collapsingAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	block := *a.pending
	signCol, ok := block.ColumnByName(a.signColumn)
	if !ok {
		return mergeStepResult{}, errors.Logical("partwriter", "collapsingAlgorithm.Step",
			fmt.Errorf("sign column %q not present in block", a.signColumn))
	}

	order := []string{}
	groups := map[string][]int{}
	for row := 0; row < block.NumRows(); row++ {
		key := rowKey(block, []string(a.sortKey), row)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	var keep []int
	for _, key := range order {
		rows := groups[key]
		var sum, countPos, countNeg int64
		for _, row := range rows {
			switch toInt64Sign(signCol.Values[row]) {
			case 1:
				countPos++
			case -1:
				countNeg++
			}
		}
		sum = countPos - countNeg
		if sum == 0 {
			continue
		}
		remaining := sum
		if remaining < 0 {
			remaining = -remaining
		}
		if countPos > 0 && countNeg > 0 {
			a.logger.Warn("collapsing merge imbalance",
				"group_key", key, "sign_sum", sum, "row_count", len(rows))
		}
		// Keep the last |remaining| rows with a sign matching the
		// majority, taken from the end of the group in input order.
		majority := int64(1)
		if sum < 0 {
			majority = -1
		}
		matched := make([]int, 0, len(rows))
		for i := len(rows) - 1; i >= 0 && int64(len(matched)) < remaining; i-- {
			if toInt64Sign(signCol.Values[rows[i]]) == majority {
				matched = append(matched, rows[i])
			}
		}
		for i := len(matched) - 1; i >= 0; i-- {
			keep = append(keep, matched[i])
		}
	}
	return mergeStepResult{IsFinished: true, Output: block.Select(keep)}, nil
}

func toInt64Sign(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// --- VersionedCollapsing: adjacent stack-based cancellation requiring a
// matching sort key and version between the cancelling pair. ---

type versionedCollapsingAlgorithm struct {
	sortKey       types.SortingKey
	signColumn    string
	versionColumn string
	pending       *types.Block
}

func (a *versionedCollapsingAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	block := *a.pending
	signCol, ok := block.ColumnByName(a.signColumn)
	if !ok {
		return mergeStepResult{}, errors.Logical("partwriter", "versionedCollapsingAlgorithm.Step",
			fmt.Errorf("sign column %q not present in block", a.signColumn))
	}
	verCol, hasVersion := block.ColumnByName(a.versionColumn)

	var stack []int
	for row := 0; row < block.NumRows(); row++ {
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			sameKey := rowKey(block, []string(a.sortKey), top) == rowKey(block, []string(a.sortKey), row)
			oppositeSign := toInt64Sign(signCol.Values[top]) == -toInt64Sign(signCol.Values[row])
			sameVersion := !hasVersion || types.Equal(verCol.Values[top], verCol.Values[row])
			if sameKey && oppositeSign && sameVersion {
				stack = stack[:len(stack)-1]
				continue
			}
		}
		stack = append(stack, row)
	}
	return mergeStepResult{IsFinished: true, Output: block.Select(stack)}, nil
}

// --- Summing: group by groupBy, sum numeric columnsToSum, keep the
// first row's other column values per group. ---

type summingAlgorithm struct {
	groupBy      []string
	columnsToSum []string
	pending      *types.Block
}

func (a *summingAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	block := *a.pending
	order := []string{}
	firstRow := map[string]int{}
	sums := map[string]map[string]float64{}
	isInt := map[string]bool{}
	for _, name := range a.columnsToSum {
		if col, ok := block.ColumnByName(name); ok && len(col.Values) > 0 {
			_, isInt[name] = col.Values[0].(int64)
		}
	}

	for row := 0; row < block.NumRows(); row++ {
		key := rowKey(block, a.groupBy, row)
		if _, seen := firstRow[key]; !seen {
			order = append(order, key)
			firstRow[key] = row
			sums[key] = map[string]float64{}
		}
		for _, name := range a.columnsToSum {
			col, ok := block.ColumnByName(name)
			if !ok {
				continue
			}
			sums[key][name] += toFloat64(col.Values[row])
		}
	}

	indices := make([]int, 0, len(order))
	for _, key := range order {
		indices = append(indices, firstRow[key])
	}
	out := block.Select(indices)
	for i, key := range order {
		for _, name := range a.columnsToSum {
			colIdx := -1
			for ci, c := range out.Columns {
				if c.Name == name {
					colIdx = ci
					break
				}
			}
			if colIdx < 0 {
				continue
			}
			if isInt[name] {
				out.Columns[colIdx].Values[i] = int64(sums[key][name])
			} else {
				out.Columns[colIdx].Values[i] = sums[key][name]
			}
		}
	}
	return mergeStepResult{IsFinished: true, Output: out}, nil
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

// --- Aggregating: merge AggregateFunction columns per sort-key class. ---

type aggregatingAlgorithm struct {
	sortKey types.SortingKey
	pending *types.Block
}

func (a *aggregatingAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	block := *a.pending
	order := []string{}
	groups := map[string][]int{}
	for row := 0; row < block.NumRows(); row++ {
		key := rowKey(block, []string(a.sortKey), row)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	aggregateCols := map[string]bool{}
	for _, c := range block.Columns {
		if c.Type == types.ColumnTypeAggregateState {
			aggregateCols[c.Name] = true
		}
	}

	indices := make([]int, 0, len(order))
	for _, key := range order {
		indices = append(indices, groups[key][0])
	}
	out := block.Select(indices)
	for i, key := range order {
		rows := groups[key]
		if len(rows) == 1 {
			continue
		}
		for colIdx, c := range out.Columns {
			if !aggregateCols[c.Name] {
				continue
			}
			states := make([]any, len(rows))
			for j, row := range rows {
				col, _ := block.ColumnByName(c.Name)
				states[j] = col.Values[row]
			}
			out.Columns[colIdx].Values[i] = types.MergeAggregateStates(states)
		}
	}
	return mergeStepResult{IsFinished: true, Output: out}, nil
}

// --- Graphite: bucket rows by retention precision matched from the
// metric path, then roll up each bucket with the rule's aggregation. ---

type graphiteAlgorithm struct {
	params  types.MergingParams
	logger  logging.Logger
	pending *types.Block
}

func (a *graphiteAlgorithm) Step(input *types.Block) (mergeStepResult, error) {
	if input != nil {
		a.pending = input
		return mergeStepResult{RequiredSource: 0, IsFinished: false}, nil
	}
	block := *a.pending
	pathCol, ok1 := block.ColumnByName(a.params.GraphitePathColumn)
	timeCol, ok2 := block.ColumnByName(a.params.GraphiteTimeColumn)
	valueCol, ok3 := block.ColumnByName(a.params.GraphiteValueColumn)
	if !ok1 || !ok2 || !ok3 {
		return mergeStepResult{}, errors.Logical("partwriter", "graphiteAlgorithm.Step",
			fmt.Errorf("graphite path/time/value columns not all present in block"))
	}

	order := []string{}
	groups := map[string][]int{}
	bucketTime := map[string]int64{}
	rules := map[string]*types.GraphiteRule{}

	for row := 0; row < block.NumRows(); row++ {
		metricPath, _ := pathCol.Values[row].(string)
		t, err := asTime(timeCol.Values[row])
		if err != nil {
			return mergeStepResult{}, errors.Logical("partwriter", "graphiteAlgorithm.Step", err)
		}
		rule := matchGraphiteRule(a.params.GraphiteRules, metricPath)
		precision := retentionPrecision(rule, a.params.GraphiteNow, t)
		bucket := t.Unix()
		if precision > 0 {
			bucket -= bucket % precision
		}
		key := fmt.Sprintf("%s\x1f%d", metricPath, bucket)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			bucketTime[key] = bucket
			rules[key] = rule
		}
		groups[key] = append(groups[key], row)
	}

	indices := make([]int, 0, len(order))
	for _, key := range order {
		indices = append(indices, groups[key][0])
	}
	out := block.Select(indices)
	timeColIdx, valueColIdx := -1, -1
	for i, c := range out.Columns {
		switch c.Name {
		case a.params.GraphiteTimeColumn:
			timeColIdx = i
		case a.params.GraphiteValueColumn:
			valueColIdx = i
		}
	}
	for i, key := range order {
		rows := groups[key]
		values := make([]float64, len(rows))
		for j, row := range rows {
			values[j] = toFloat64(valueCol.Values[row])
		}
		agg := "last"
		if rules[key] != nil {
			agg = rules[key].Aggregation
		}
		if timeColIdx >= 0 {
			switch timeCol.Values[rows[0]].(type) {
			case int64:
				out.Columns[timeColIdx].Values[i] = bucketTime[key]
			}
		}
		if valueColIdx >= 0 {
			out.Columns[valueColIdx].Values[i] = graphiteAggregate(agg, values)
		}
	}
	return mergeStepResult{IsFinished: true, Output: out}, nil
}

func matchGraphiteRule(rules []types.GraphiteRule, metricPath string) *types.GraphiteRule {
	for i := range rules {
		if ok, err := path.Match(rules[i].PathPattern, metricPath); err == nil && ok {
			return &rules[i]
		}
	}
	return nil
}

func retentionPrecision(rule *types.GraphiteRule, now, t time.Time) int64 {
	if rule == nil || len(rule.Retentions) == 0 {
		return 0
	}
	age := int64(now.Sub(t).Seconds())
	retentions := append([]types.GraphiteRetention(nil), rule.Retentions...)
	sort.Slice(retentions, func(i, j int) bool { return retentions[i].AgeSeconds < retentions[j].AgeSeconds })
	precision := int64(0)
	for _, r := range retentions {
		if age >= r.AgeSeconds {
			precision = r.Precision
		}
	}
	return precision
}

func graphiteAggregate(fn string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch fn {
	case "sum":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case "avg":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	default: // "last"
		return values[len(values)-1]
	}
}
