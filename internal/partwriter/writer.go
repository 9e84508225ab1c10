package partwriter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mergetree-writer/internal/config"
	"mergetree-writer/internal/counter"
	"mergetree-writer/internal/errors"
	"mergetree-writer/internal/janitor"
	"mergetree-writer/internal/logging"
	"mergetree-writer/internal/storagepolicy"
	"mergetree-writer/internal/vectorindex"
	"mergetree-writer/pkg/types"
)

// Writer runs the full insert-path pipeline for one table: partition
// scattering, sort planning, single-block reduction, TTL accumulation,
// MinMax indexing, space reservation, and projection writing,
// orchestrated by writeTempPart.
type Writer struct {
	schema   types.TableSchema
	settings config.WriterConfig

	tempIndex  *counter.TempIndex
	reserver   *storagepolicy.Reserver
	janitor    *janitor.Registry
	vectorSink *vectorindex.Sink
	counters   *counter.EventCounters
	logger     logging.Logger

	moveAllowed func(storagepolicy.Volume, map[string]types.TTLInfo, time.Time) bool
}

// NewWriter builds a Writer for schema. moveAllowed may be nil, in which
// case every volume is always eligible.
func NewWriter(
	schema types.TableSchema,
	settings config.WriterConfig,
	tempIndex *counter.TempIndex,
	reserver *storagepolicy.Reserver,
	janitorRegistry *janitor.Registry,
	vectorSink *vectorindex.Sink,
	counters *counter.EventCounters,
	logger logging.Logger,
	moveAllowed func(storagepolicy.Volume, map[string]types.TTLInfo, time.Time) bool,
) *Writer {
	return &Writer{
		schema:      schema,
		settings:    settings,
		tempIndex:   tempIndex,
		reserver:    reserver,
		janitor:     janitorRegistry,
		vectorSink:  vectorSink,
		counters:    counters,
		logger:      logger,
		moveAllowed: moveAllowed,
	}
}

// Insert runs the Partition Scatterer over block and writes one
// TemporaryPart per distinct partition tuple discovered. A TooManyParts
// failure happens before any directory is created for the batch: no
// partial output survives it.
func (w *Writer) Insert(ctx context.Context, block types.Block) ([]*TemporaryPart, error) {
	if block.NumRows() == 0 {
		return nil, nil
	}

	scatteredBlocks, err := scatter(block, w.schema.PartitionKey, w.settings.MaxParts)
	if err != nil {
		if errors.Is(err, errors.KindTooManyParts) {
			w.counters.TooManyPartsCount.Add(1)
		}
		return nil, err
	}

	parts := make([]*TemporaryPart, 0, len(scatteredBlocks))
	for _, sb := range scatteredBlocks {
		part, err := w.writeTempPart(ctx, sb.Block, sb.Partition)
		if err != nil {
			return nil, err
		}
		if part != nil {
			parts = append(parts, part)
		}
	}
	return parts, nil
}

// writeTempPart runs Sort -> Reduce -> [empty check] -> TTLs -> MinMax ->
// ChooseType -> ReserveDir -> OpenSerializer -> WritePermuted ->
// Projections -> FinalizeAsync for one partition's sub-block. When the
// sub-block reduces to zero rows it returns an empty TemporaryPart (no
// Dir, IsTemp false) and a nil error: not a failure, just nothing to
// write.
func (w *Writer) writeTempPart(ctx context.Context, block types.Block, partition types.PartitionTuple) (*TemporaryPart, error) {
	plan, err := planSort(block, w.schema.SortingKey, w.schema.SkipIndices)
	if err != nil {
		return nil, errors.Logical("partwriter", "writeTempPart", err)
	}

	var finalBlock types.Block
	if w.settings.OptimizeOnInsert {
		params := w.schema.MergingParams
		if params.Mode == types.MergingGraphite {
			params.GraphiteNow = time.Now().UTC()
		}
		finalBlock, err = reduceBlock(plan.Block, plan.Permutation, w.schema.SortingKey, params, w.logger)
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

	ttlInfos, err := accumulateTTLs(finalBlock, w.schema.TTLEntries)
	if err != nil {
		return nil, err
	}

	minmax, err := computeMinMax(finalBlock, w.schema.PartitionKey)
	if err != nil {
		return nil, err
	}

	partType := choosePartType(finalBlock, w.settings.MinRowsForWidePart, w.settings.MinBytesForWidePart, w.settings.InMemoryPartRowsThreshold)

	partitionID := partitionDirID(partition)

	blockIndex := w.tempIndex.Next(ctx)
	var minDate, maxDate time.Time
	if w.schema.FormatVersionV0 {
		minDate, maxDate, err = v0PartitionDateRange(w.schema, finalBlock)
		if err != nil {
			return nil, err
		}
	}
	name, err := namePart(w.schema, partitionID, minDate, maxDate, blockIndex, blockIndex, 0)
	if err != nil {
		return nil, err
	}

	tempDir := filepath.Join(w.settings.TempPartBaseDir, "tmp_insert_"+name)
	owner := fmt.Sprintf("pid-%d", os.Getpid())
	if _, err := w.janitor.Acquire(ctx, tempDir, owner); err != nil {
		w.counters.IOErrors.Add(1)
		return nil, err
	}

	expectedBytes := estimateRowBytes(finalBlock) * int64(finalBlock.NumRows())
	reservation, err := w.reserver.Reserve(ctx, expectedBytes, ttlInfos.Move, time.Now(), w.moveAllowed)
	if err != nil {
		_ = w.janitor.Release(ctx, tempDir)
		w.counters.ReservationFails.Add(1)
		return nil, err
	}

	serializer, err := newFileSerializer(tempDir, partType)
	if err != nil {
		_ = w.janitor.Release(ctx, tempDir)
		w.counters.IOErrors.Add(1)
		return nil, err
	}
	if err := serializer.WriteWithPermutation(finalBlock, nil); err != nil {
		w.counters.IOErrors.Add(1)
		return nil, err
	}

	descriptor := types.PartDescriptor{
		Name:        name,
		PartitionID: partitionID,
		Partition:   partition,
		MinBlock:    blockIndex,
		MaxBlock:    blockIndex,
		Level:       0,
		MinMax:      minmax,
		TTLInfos:    ttlInfos,
		RowCount:    finalBlock.NumRows(),
		Columns:     w.schema.Columns,
		PartType:    partType,
	}
	if w.settings.AssignPartUUIDs {
		descriptor.UUID = newPartUUID()
	}

	if err := serializer.WriteMetadata(descriptor); err != nil {
		w.counters.IOErrors.Add(1)
		return nil, err
	}
	finalizer := serializer.FinalizeAsync(w.settings.FsyncAfterInsert)

	part := &TemporaryPart{
		Dir:        tempDir,
		Descriptor: descriptor,
		Streams:    []Stream{{Name: "data", finalizer: finalizer}},
		IsTemp:     true,
		release:    func() error { return w.janitor.Release(ctx, tempDir) },
	}

	for _, proj := range w.schema.Projections {
		projPart, err := w.writeProjection(ctx, proj, finalBlock, tempDir)
		if err != nil {
			return nil, err
		}
		if projPart == nil {
			continue
		}
		part.Projections = append(part.Projections, *projPart)
		descriptor.Projections = append(descriptor.Projections, types.ProjectionPartDescriptor{
			Name: proj.Name,
			Dir:  filepath.Base(projPart.Dir),
			Part: projPart.Descriptor,
		})
	}
	part.Descriptor = descriptor

	w.counters.PartsWritten.Add(1)
	w.counters.RowsInserted.Add(int64(finalBlock.NumRows()))
	w.logger.Debug("reserved volume for part", "part", name, "volume", reservation.Volume.Name)

	return part, nil
}

func newPartUUID() string {
	return uuid.New().String()
}
