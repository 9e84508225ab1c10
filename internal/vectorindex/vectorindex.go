// Package vectorindex is the optional sink for projection embedding
// columns: when a projection's schema names an embedding column, its
// post-reduction vectors are mirrored into a Qdrant collection so they
// can be queried by similarity. It is never part of the writer's
// durability contract — a Qdrant failure is logged and swallowed.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"mergetree-writer/internal/config"
	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

// Sink upserts projection embedding columns into Qdrant.
type Sink struct {
	client  *qdrant.Client
	enabled bool
	logger  logging.Logger
}

// NewSink connects to Qdrant per cfg. When cfg.Enabled is false, the
// returned Sink's Upsert is a no-op and no connection is attempted.
func NewSink(cfg config.VectorIndexConfig, logger logging.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return &Sink{enabled: false, logger: logger}, nil
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Sink{client: client, enabled: true, logger: logger}, nil
}

// EnsureCollection creates the named collection with the given vector
// dimensionality if it does not already exist.
func (s *Sink) EnsureCollection(ctx context.Context, collection string, dims uint64) error {
	if !s.enabled {
		return nil
	}
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range collections {
		if c == collection {
			return nil
		}
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dims,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert mirrors proj's EmbeddingColumn into collection, one point per
// row, keyed by the row's position combined with the part name so
// repeated writer runs do not collide. A Qdrant error is logged, never
// returned as a write failure — the projection write itself already
// succeeded before this call runs.
func (s *Sink) Upsert(ctx context.Context, collection, partName string, proj types.Projection, block types.Block) {
	if !s.enabled {
		return
	}
	col, ok := block.ColumnByName(proj.EmbeddingColumn)
	if !ok {
		return
	}
	points := make([]*qdrant.PointStruct, 0, len(col.Values))
	for i, v := range col.Values {
		vec, ok := v.([]float32)
		if !ok {
			s.logger.Warn("embedding column has non-vector value, skipping row",
				"projection", proj.Name, "row", i)
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(fmt.Sprintf("%s:%d", partName, i)),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vec}}},
		})
	}
	if len(points) == 0 {
		return
	}
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	}); err != nil {
		s.logger.Warn("vector index upsert failed, continuing without it",
			"collection", collection, "part", partName, "error", err.Error())
	}
}

func pointID(s string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: s}}
}

// Close releases the underlying connection, if any.
func (s *Sink) Close() error {
	if !s.enabled || s.client == nil {
		return nil
	}
	return s.client.Close()
}
