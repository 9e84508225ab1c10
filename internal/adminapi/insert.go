package adminapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mergetree-writer/internal/errors"
	"mergetree-writer/internal/eventstream"
	"mergetree-writer/internal/partwriter"
)

// insertRequest is the JSON body of a synchronous insert: one block to
// run through the table's full pipeline in one call.
type insertRequest struct {
	Block wireBlock `json:"block"`
}

// insertResponse reports every part (and, transitively, projection)
// produced by the insert, after each has been durably finalized and
// committed into the table's active directory.
type insertResponse struct {
	Table string        `json:"table"`
	Parts []partSummary `json:"parts"`
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	ctx := r.Context()

	writer, err := s.writerFor(ctx, table)
	if err != nil {
		writeError(w, err)
		return
	}

	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	schema, err := s.store.TableSchema(ctx, table)
	if err != nil {
		writeError(w, err)
		return
	}
	block, err := decodeBlock(req.Block, schema)
	if err != nil {
		writeError(w, err)
		return
	}

	parts, err := writer.Insert(ctx, block)
	if err != nil {
		if we, ok := errors.AsWriterError(err); ok && we.Kind == errors.KindTooManyParts {
			s.broadcastEvent(eventstream.Event{
				Type:       eventstream.EventTooManyPartsRejected,
				Table:      table,
				Discovered: we.Context.Metadata["discovered"].(int),
				MaxParts:   we.Context.Metadata["max_parts"].(int),
			})
		}
		writeError(w, err)
		return
	}

	summaries := make([]partSummary, 0, len(parts))
	for _, part := range parts {
		if err := s.commitAndRegister(ctx, table, part); err != nil {
			writeError(w, err)
			return
		}
		s.broadcastEvent(eventstream.Event{
			Type:        eventstream.EventPartWritten,
			Table:       table,
			PartName:    part.Descriptor.Name,
			PartitionID: part.Descriptor.PartitionID,
			RowCount:    part.Descriptor.RowCount,
		})
		summaries = append(summaries, summarize(part.Descriptor))
	}

	writeJSON(w, http.StatusOK, insertResponse{Table: table, Parts: summaries})
}

// commitAndRegister finalizes part onto disk, renames it into the
// table's active directory, and records its descriptor in the catalog.
// A nil, non-temp part (the sub-block reduced to zero rows) is skipped.
func (s *Server) commitAndRegister(ctx context.Context, table string, part *partwriter.TemporaryPart) error {
	if part == nil || (!part.IsTemp && part.Dir == "") {
		return nil
	}
	if _, err := part.Commit(); err != nil {
		return err
	}
	if err := s.store.RegisterPart(ctx, table, part.Descriptor); err != nil {
		return errors.IO("adminapi", "commitAndRegister", err)
	}
	return nil
}
