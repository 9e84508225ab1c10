package partwriter

import (
	"os"
	"path/filepath"
	"strings"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// Stream is the set of files written into one part directory (all
// column files plus metadata) plus the finalizer that makes them
// durable.
type Stream struct {
	Name      string
	finalizer Finalizer
}

// TemporaryPart is the writer's handle on a part before it has been
// committed into the table's active set: its directory is named with a
// "tmp_insert_" prefix (set by writeTempPart) until Commit renames it, and
// IsTemp stays true until Finalize has been waited on successfully.
type TemporaryPart struct {
	Dir         string
	Descriptor  types.PartDescriptor
	Streams     []Stream
	IsTemp      bool
	Projections []TemporaryPart

	// release, if set, is called once after every stream (and every
	// nested projection) has finalized successfully — normally the
	// janitor lease on Dir, now safe to drop since the directory is
	// about to be renamed into the table's active set.
	release func() error
}

// Finalize blocks until every stream's finalizer (and every nested
// projection's streams) has completed, returning the first error
// encountered. On success IsTemp is cleared, signalling the part may be
// renamed into the table's active directory.
func (p *TemporaryPart) Finalize() error {
	for _, s := range p.Streams {
		if err := s.finalizer.Wait(); err != nil {
			return errors.IO("partwriter", "Finalize", err)
		}
	}
	for i := range p.Projections {
		if err := p.Projections[i].Finalize(); err != nil {
			return err
		}
	}
	if p.release != nil {
		if err := p.release(); err != nil {
			return errors.IO("partwriter", "Finalize", err)
		}
	}
	p.IsTemp = false
	return nil
}

// Commit finalizes p and its projections (unless Finalize has already
// succeeded), then renames each directory out of its temporary name
// ("tmp_insert_<name>" for the main part, "<proj_name>.tmp_proj" for a
// projection) into the corresponding permanent name in the same parent
// directory, returning the part's final directory. A part with no Dir
// (the empty-output case) or one already committed is a no-op returning
// its existing Dir unchanged.
func (p *TemporaryPart) Commit() (string, error) {
	if p.Dir == "" {
		return p.Dir, nil
	}
	if p.IsTemp {
		if err := p.Finalize(); err != nil {
			return "", err
		}
	}
	finalDir := permanentDir(p.Dir)
	if finalDir == p.Dir {
		return p.Dir, nil
	}
	if err := os.Rename(p.Dir, finalDir); err != nil {
		return "", errors.IO("partwriter", "Commit", err)
	}
	p.Dir = finalDir

	for i := range p.Descriptor.Projections {
		projDir := filepath.Join(finalDir, p.Descriptor.Projections[i].Dir)
		renamed := strings.TrimSuffix(projDir, ".tmp_proj") + ".proj"
		if err := os.Rename(projDir, renamed); err != nil {
			return "", errors.IO("partwriter", "Commit", err)
		}
		p.Descriptor.Projections[i].Dir = filepath.Base(renamed)
	}
	return finalDir, nil
}

// permanentDir strips the "tmp_insert_" prefix from a temporary part
// directory's base name, leaving it in the same parent directory.
func permanentDir(tempDir string) string {
	base := filepath.Base(tempDir)
	base = strings.TrimPrefix(base, "tmp_insert_")
	return filepath.Join(filepath.Dir(tempDir), base)
}
