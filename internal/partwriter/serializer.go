package partwriter

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"mergetree-writer/internal/errors"
	"mergetree-writer/pkg/types"
)

// ColumnSerializer is the writer's on-disk output collaborator: it
// accepts the final, permuted block and produces the part's column
// files, with finalization (fsync) deferred to the returned Finalizer so
// the caller can write projections before waiting on it. Renaming the
// part into place is TemporaryPart.Commit's job, not the serializer's.
type ColumnSerializer interface {
	WriteWithPermutation(block types.Block, permutation []int) error
	WriteMetadata(desc types.PartDescriptor) error
	FinalizeAsync(fsync bool) Finalizer
}

// Finalizer is a handle to asynchronous finalization work; Wait blocks
// until it completes and returns its error, if any.
type Finalizer interface {
	Wait() error
}

type funcFinalizer struct {
	once sync.Once
	err  error
	fn   func() error
}

func (f *funcFinalizer) Wait() error {
	f.once.Do(func() { f.err = f.fn() })
	return f.err
}

// fileSerializer is a reference ColumnSerializer writing one gob-encoded
// file per column for Wide parts, or a single combined file for Compact
// and InMemory parts, under dir. There is no third-party binary codec in
// the carried stack suited to an arbitrary column value set (no
// protobuf/flatbuffers schema exists for this domain), so this uses the
// standard library's encoding/gob.
type fileSerializer struct {
	dir      string
	partType types.PartType
	written  types.Block
}

// newFileSerializer creates dir (which must not already exist) and
// returns a serializer that will write into it.
func newFileSerializer(dir string, partType types.PartType) (*fileSerializer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IO("partwriter", "newFileSerializer", fmt.Errorf("mkdir %s: %w", dir, err))
	}
	return &fileSerializer{dir: dir, partType: partType}, nil
}

func (s *fileSerializer) WriteWithPermutation(block types.Block, permutation []int) error {
	if permutation != nil {
		block = block.Permute(permutation)
	}
	s.written = block
	if s.partType == types.PartTypeWide {
		for _, col := range block.Columns {
			path := filepath.Join(s.dir, col.Name+".bin")
			if err := writeGobFile(path, col); err != nil {
				return err
			}
		}
		return nil
	}
	return writeGobFile(filepath.Join(s.dir, "data.bin"), block)
}

// WriteMetadata writes the part's sidecar metadata files: columns.txt
// (schema), count.txt (row count), partition.dat (partition tuple),
// minmax_<col>.idx per partition-key column, and ttl.txt (folded TTL
// summaries). None of these carry ClickHouse's mark or checksum
// structure; they exist so a part directory is self-describing without
// reopening the in-memory PartDescriptor.
func (s *fileSerializer) WriteMetadata(desc types.PartDescriptor) error {
	if err := writeColumnsFile(filepath.Join(s.dir, "columns.txt"), desc.Columns); err != nil {
		return err
	}
	if err := writeTextFile(filepath.Join(s.dir, "count.txt"), strconv.Itoa(desc.RowCount)+"\n"); err != nil {
		return err
	}
	if err := writeGobFile(filepath.Join(s.dir, "partition.dat"), desc.Partition); err != nil {
		return err
	}
	for _, name := range desc.MinMax.Columns {
		iv := desc.MinMax.Intervals[name]
		if err := writeGobFile(filepath.Join(s.dir, "minmax_"+name+".idx"), iv); err != nil {
			return err
		}
	}
	if err := writeTTLFile(filepath.Join(s.dir, "ttl.txt"), desc.TTLInfos); err != nil {
		return err
	}
	return nil
}

func writeColumnsFile(path string, columns []types.Column) error {
	var out string
	for _, c := range columns {
		out += c.Name + "\t" + string(c.Type) + "\n"
	}
	return writeTextFile(path, out)
}

// writeTTLFile renders a PartTTLInfos as plain text, one "category[:name]
// min max" line per folded entry, min/max in RFC3339. Categories with no
// folded entries contribute no lines; the file is still created.
func writeTTLFile(path string, infos types.PartTTLInfos) error {
	var out string
	if infos.Rows.IsSet() {
		out += ttlLine("rows", "", infos.Rows)
	}
	out += ttlCategoryLines("group_by", infos.GroupBy)
	out += ttlCategoryLines("rows_where", infos.RowsWhere)
	out += ttlCategoryLines("columns", infos.Columns)
	out += ttlCategoryLines("recompression", infos.Recompression)
	out += ttlCategoryLines("move", infos.Move)
	return writeTextFile(path, out)
}

func ttlCategoryLines(category string, entries map[string]types.TTLInfo) string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	var out string
	for _, name := range names {
		info := entries[name]
		if !info.IsSet() {
			continue
		}
		out += ttlLine(category, name, info)
	}
	return out
}

func ttlLine(category, name string, info types.TTLInfo) string {
	if name != "" {
		category = category + ":" + name
	}
	return fmt.Sprintf("%s %s %s\n", category, info.Min.Format(time.RFC3339), info.Max.Format(time.RFC3339))
}

func writeTextFile(path, contents string) error {
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return errors.IO("partwriter", "writeTextFile", fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

func writeGobFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IO("partwriter", "writeGobFile", fmt.Errorf("create %s: %w", path, err))
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return errors.IO("partwriter", "writeGobFile", fmt.Errorf("encode %s: %w", path, err))
	}
	return nil
}

// FinalizeAsync fsyncs every file under dir (when fsync is set) and
// returns a Finalizer the caller must Wait on before treating the part
// as durable.
func (s *fileSerializer) FinalizeAsync(fsync bool) Finalizer {
	return &funcFinalizer{fn: func() error {
		if !fsync {
			return nil
		}
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return errors.IO("partwriter", "FinalizeAsync", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := fsyncFile(filepath.Join(s.dir, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}}
}

func fsyncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.IO("partwriter", "fsyncFile", fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errors.IO("partwriter", "fsyncFile", fmt.Errorf("fsync %s: %w", path, err))
	}
	return nil
}

// fsyncDir fsyncs a directory's own metadata. Nothing in this package
// calls it: Commit does not fsync directories after renaming, and the
// fsync_part_directory setting is not read by the writer.
func fsyncDir(dir string) error {
	return fsyncFile(dir)
}
