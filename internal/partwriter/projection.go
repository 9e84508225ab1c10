package partwriter

import (
	"context"
	"fmt"
	"path/filepath"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// writeProjection derives the projection's block from the already-
// reduced main block,
// re-runs sort planning and (when the projection forces Aggregate
// semantics, or the table already had optimize_on_insert set) reduction
// with the projection's own sorting key, then writes it through the same
// serializer pipeline as a main part, under
// "<proj_name>.tmp_proj" beneath parentDir. A projection whose Calculate
// yields no rows is skipped entirely, matching the main writer's "empty
// output is not a failure" rule.
func (w *Writer) writeProjection(ctx context.Context, proj types.Projection, mainBlock types.Block, parentDir string) (*TemporaryPart, error) {
	projBlock, err := proj.Calculate(mainBlock)
	if err != nil {
		return nil, errors.Logical("partwriter", "writeProjection",
			fmt.Errorf("calculate projection %s: %w", proj.Name, err))
	}
	if projBlock.NumRows() == 0 {
		return nil, nil
	}

	plan, err := planSort(projBlock, proj.SortingKey, nil)
	if err != nil {
		return nil, err
	}

	mergingParams := proj.MergingParams
	forceReduce := w.settings.OptimizeOnInsert
	if proj.Type == types.ProjectionAggregate {
		mergingParams.Mode = types.MergingAggregating
		forceReduce = true
	}

	var finalBlock types.Block
	if forceReduce {
		finalBlock, err = reduceBlock(plan.Block, plan.Permutation, proj.SortingKey, mergingParams, w.logger)
		if err != nil {
			return nil, err
		}
	} else if plan.Permutation != nil {
		finalBlock = plan.Block.Permute(plan.Permutation)
	} else {
		finalBlock = plan.Block
	}

	if finalBlock.NumRows() == 0 {
		return &TemporaryPart{IsTemp: false}, nil
	}

	partType := choosePartType(finalBlock, w.settings.MinRowsForWidePart, w.settings.MinBytesForWidePart, w.settings.InMemoryPartRowsThreshold)
	dirName := proj.Name + ".tmp_proj"
	dir := filepath.Join(parentDir, dirName)

	serializer, err := newFileSerializer(dir, partType)
	if err != nil {
		return nil, err
	}
	if err := serializer.WriteWithPermutation(finalBlock, nil); err != nil {
		return nil, err
	}

	descriptor := types.PartDescriptor{
		Name:        "all_0_0_0",
		PartitionID: "all",
		Partition:   types.PartitionTuple{},
		MinBlock:    0,
		MaxBlock:    0,
		Level:       0,
		RowCount:    finalBlock.NumRows(),
		Columns:     proj.Columns,
		PartType:    partType,
	}

	if err := serializer.WriteMetadata(descriptor); err != nil {
		return nil, err
	}
	finalizer := serializer.FinalizeAsync(w.settings.FsyncAfterInsert)

	if proj.EmbeddingColumn != "" && w.vectorSink != nil {
		w.vectorSink.Upsert(ctx, w.vectorCollection(proj), descriptor.Name, proj, finalBlock)
	}

	return &TemporaryPart{
		Dir:        dir,
		Descriptor: descriptor,
		Streams:    []Stream{{Name: dirName, finalizer: finalizer}},
		IsTemp:     true,
	}, nil
}

func (w *Writer) vectorCollection(proj types.Projection) string {
	return w.schema.TableName + "." + proj.Name
}
