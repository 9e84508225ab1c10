// Package janitor tracks leases on temporary part directories so that a
// crashed writer process's orphaned directories can be found and
// collected by a separate sweep, rather than leaking disk space forever.
package janitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"mergetree-writer/internal/errors"
	"mergetree-writer/internal/logging"
)

// Lease is one acquired temporary-directory registration.
type Lease struct {
	Dir        string
	Owner      string
	AcquiredAt time.Time
}

// Registry is a SQLite-backed lease table. A writer process acquires a
// lease before creating a temp directory and releases it after the
// directory is finalized or removed; ListStale surfaces leases whose
// owner process is presumed dead.
type Registry struct {
	db *sql.DB
}

// NewRegistry opens (creating if necessary) a lease registry at path.
func NewRegistry(path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open janitor registry %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS temp_dir_leases (
		dir TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		acquired_at DATETIME NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("migrate janitor registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Acquire registers dir as owned by owner. It fails with an IOError if
// dir is already leased (the Write Orchestrator's ReserveDir state must
// never hand out a directory name twice).
func (r *Registry) Acquire(ctx context.Context, dir, owner string) (Lease, error) {
	lease := Lease{Dir: dir, Owner: owner, AcquiredAt: time.Now()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO temp_dir_leases (dir, owner, acquired_at) VALUES (?, ?, ?)`,
		lease.Dir, lease.Owner, lease.AcquiredAt)
	if err != nil {
		return Lease{}, errors.IO("janitor", "Acquire", fmt.Errorf("lease %s already held: %w", dir, err))
	}
	return lease, nil
}

// Release removes dir's lease, normally called once the directory has
// been finalized (renamed to its permanent part name) or torn down.
func (r *Registry) Release(ctx context.Context, dir string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM temp_dir_leases WHERE dir = ?`, dir)
	if err != nil {
		return errors.IO("janitor", "Release", err)
	}
	return nil
}

// ListStale returns every lease acquired before cutoff; the caller
// derives cutoff from its own staleness threshold. These are
// candidates for the sweep to remove.
func (r *Registry) ListStale(ctx context.Context, cutoff time.Time) ([]Lease, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT dir, owner, acquired_at FROM temp_dir_leases WHERE acquired_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale leases: %w", err)
	}
	defer rows.Close()

	var out []Lease
	for rows.Next() {
		var l Lease
		if err := rows.Scan(&l.Dir, &l.Owner, &l.AcquiredAt); err != nil {
			return nil, fmt.Errorf("scan lease row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close releases the underlying connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Sweeper periodically removes stale leases' directories and their
// registry rows.
type Sweeper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
	removeDir func(dir string) error
	logger    logging.Logger
}

// NewSweeper builds a Sweeper that runs every interval, treating leases
// older than threshold as stale, and removing their directories with
// removeDir (normally os.RemoveAll).
func NewSweeper(registry *Registry, interval, threshold time.Duration, removeDir func(dir string) error, logger logging.Logger) *Sweeper {
	return &Sweeper{registry: registry, interval: interval, threshold: threshold, removeDir: removeDir, logger: logger}
}

// Run blocks, sweeping at Sweeper's interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	stale, err := s.registry.ListStale(ctx, time.Now().Add(-s.threshold))
	if err != nil {
		s.logger.Error("list stale leases failed", "error", err.Error())
		return
	}
	for _, lease := range stale {
		if err := s.removeDir(lease.Dir); err != nil {
			s.logger.Error("remove stale temp dir failed", "dir", lease.Dir, "error", err.Error())
			continue
		}
		if err := s.registry.Release(ctx, lease.Dir); err != nil {
			s.logger.Error("release stale lease failed", "dir", lease.Dir, "error", err.Error())
			continue
		}
		s.logger.Info("collected stale temp dir", "dir", lease.Dir, "owner", lease.Owner)
	}
}
