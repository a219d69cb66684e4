// Package tristore is a persistent RDF triple store with a SPARQL 1.1
// query engine and a forward-chaining OWL 2 RL reasoner feedback path.
// Store glues together the term dictionary (internal/dict), the triple
// indices (internal/index), the statistics collector (internal/stats),
// the cost-based planner (internal/plan), the leapfrog join core
// (internal/leapfrog), the result cache (internal/cache) and the
// snapshot registry (internal/snapret) into the single handle callers
// open, query, and close.
package tristore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/nqrdf/tristore/internal/cache"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/internal/pathsafe"
	"github.com/nqrdf/tristore/internal/plan"
	"github.com/nqrdf/tristore/internal/snapret"
	"github.com/nqrdf/tristore/internal/stats"
	"github.com/nqrdf/tristore/term"
)

// Store is a handle onto one triple store database file.
type Store struct {
	path string

	backend  *kv.Backend
	dict     *dict.Dictionary
	idx      *index.Index
	statsSrv *stats.Server
	planner  *plan.Planner
	cache    *cache.Cache
	snaps    *snapret.Registry

	closed atomic.Bool
}

// Open creates and opens a database at path. If it does not exist,
// Open creates it only when opts.CreateIfMissing is set.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, newErr(KindInvalidInput, "empty_path", "database path must not be empty", nil)
	}

	backend, err := kv.Open(path, kv.Options{CreateIfMissing: opts.CreateIfMissing})
	if err != nil {
		return nil, newErr(KindIO, "open", "failed to open database", err)
	}

	d, err := dict.Open(backend, dict.Options{ShardCount: opts.ShardCount})
	if err != nil {
		_ = backend.Close()
		return nil, newErr(KindIO, "open", "failed to open dictionary", err)
	}

	idx, err := index.Open(backend)
	if err != nil {
		d.Stop()
		_ = backend.Close()
		return nil, newErr(KindIO, "open", "failed to open index", err)
	}

	statsSrv, err := stats.Open(backend, idx, stats.Options{})
	if err != nil {
		d.Stop()
		_ = backend.Close()
		return nil, newErr(KindIO, "open", "failed to open statistics server", err)
	}
	statsSrv.Start()

	c := cache.New(cache.Options{
		MaxEntries:     opts.CacheMaxEntries,
		MaxMemoryBytes: int64(opts.CacheMaxMemory.Bytes()),
		MaxResultSize:  opts.CacheMaxResultSize,
		TTL:            opts.CacheTTL,
	})
	c.Start()

	snaps := snapret.Open(backend, snapret.Options{
		SweepInterval: opts.SnapshotSweepInterval,
		OnSoftWarning: opts.OnSnapshotSoftWarning,
	})
	snaps.Start()

	return &Store{
		path:     path,
		backend:  backend,
		dict:     d,
		idx:      idx,
		statsSrv: statsSrv,
		planner:  plan.NewPlanner(statsSrv),
		cache:    c,
		snaps:    snaps,
	}, nil
}

// Close stops every background actor and releases the database file
// lock. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.snaps.Stop()
	s.cache.Stop()
	s.statsSrv.Stop()
	s.dict.Stop()
	return s.backend.Close()
}

// Insert stores every triple in triples in one atomic batch, then
// notifies the statistics server and invalidates any cached query
// that touches one of the inserted predicates. It returns the number
// of triples written.
func (s *Store) Insert(ctx context.Context, triples []Triple) (int, error) {
	if s.closed.Load() {
		return 0, newErr(KindClosed, "closed", "store is closed", nil)
	}
	if len(triples) == 0 {
		return 0, nil
	}

	encoded, predicates, err := s.encodeTriples(triples)
	if err != nil {
		return 0, err
	}

	if err := s.idx.InsertBatch(encoded, index.WriteOptions{Sync: true}); err != nil {
		return 0, newErr(KindIO, "insert", "failed to write triples", err)
	}

	s.statsSrv.NotifyModified(len(triples))
	s.cache.InvalidateByPredicates(predicates)
	return len(triples), nil
}

// Delete removes every triple in triples from every index it appears
// in. It returns len(triples): a triple absent from the store is
// skipped without error and is still counted.
func (s *Store) Delete(ctx context.Context, triples []Triple) (int, error) {
	if s.closed.Load() {
		return 0, newErr(KindClosed, "closed", "store is closed", nil)
	}
	if len(triples) == 0 {
		return 0, nil
	}

	encoded, predicates, err := s.encodeTriples(triples)
	if err != nil {
		return 0, err
	}

	if err := s.idx.DeleteBatch(encoded); err != nil {
		return 0, newErr(KindIO, "delete", "failed to delete triples", err)
	}

	s.statsSrv.NotifyModified(len(triples))
	s.cache.InvalidateByPredicates(predicates)
	return len(triples), nil
}

// encodeTriples resolves every term in triples through the dictionary
// in one batch (new terms are assigned fresh IDs), then reassembles
// the per-triple S/P/O index.Triple values plus the distinct set of
// predicate IDs touched, for cache invalidation.
func (s *Store) encodeTriples(triples []Triple) ([]index.Triple, []dict.ID, error) {
	terms := make([]term.Term, 0, len(triples)*3)
	for _, t := range triples {
		terms = append(terms, t.Subj, t.Pred, t.Obj)
	}

	ids, err := s.dict.EncodeMany(terms)
	if err != nil {
		return nil, nil, newErr(KindInvalidInput, "encode", "failed to encode term", err)
	}

	out := make([]index.Triple, len(triples))
	seen := make(map[dict.ID]bool, len(triples))
	predicates := make([]dict.ID, 0, len(triples))
	for i := range triples {
		subj, pred, obj := ids[i*3], ids[i*3+1], ids[i*3+2]
		out[i] = index.Triple{S: subj, P: pred, O: obj}
		if !seen[pred] {
			seen[pred] = true
			predicates = append(predicates, pred)
		}
	}
	return out, predicates, nil
}

// Handle is a TTL-bounded, read-consistent view onto the store,
// backed by the snapshot registry (internal/snapret).
type Handle struct {
	h snapret.Handle
}

// Snapshot takes a new read view with the given ttl, auto-released by
// the registry's periodic sweep if never explicitly released.
func (s *Store) Snapshot(ttl time.Duration) (Handle, error) {
	if s.closed.Load() {
		return Handle{}, newErr(KindClosed, "closed", "store is closed", nil)
	}
	h, err := s.snaps.Create(context.Background(), ttl)
	if err != nil {
		return Handle{}, newErr(KindIO, "snapshot", "failed to create snapshot", err)
	}
	return Handle{h: h}, nil
}

// Release releases a handle taken via Snapshot before its TTL expires.
func (s *Store) Release(h Handle) error {
	if err := s.snaps.Release(h.h); err != nil {
		return newErr(KindIO, "release", "failed to release snapshot", err)
	}
	return nil
}

// WithSnapshot runs fn with a freshly created snapshot handle,
// releasing it on every exit path (success, error, or panic).
func (s *Store) WithSnapshot(ttl time.Duration, fn func(Handle) error) error {
	if s.closed.Load() {
		return newErr(KindClosed, "closed", "store is closed", nil)
	}
	return s.snaps.WithSnapshot(ttl, func(h snapret.Handle) error {
		return fn(Handle{h: h})
	})
}

// Stats returns store-wide counters. Triple and distinct counts are
// those of the statistics server's last refresh, not of every insert
// since; the cache counters are current.
func (s *Store) Stats() map[string]int64 {
	st := s.statsSrv.Snapshot()
	return map[string]int64{
		"triple_count":      int64(st.TripleCount),
		"distinct_subjects": int64(st.DistinctSubjects),
		"distinct_objects":  int64(st.DistinctObjects),
		"cache_entries":     int64(s.cache.Len()),
		"cache_skipped_mem": s.cache.SkippedMemory(),
	}
}

// Backup copies the database file into the directory path (created if
// needed), alongside a metadata file recording creation time, triple
// count, and schema version.
// path must resolve inside the parent of the store's own directory,
// the root pathsafe.Resolve checks against.
func (s *Store) Backup(path string) error {
	resolved, err := pathsafe.Resolve(filepath.Dir(s.path), path)
	if err != nil {
		return newErr(KindInvalidInput, "traversal", "backup path escapes its root", err)
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return newErr(KindIO, "backup", "failed to create backup directory", err)
	}
	if err := copyFile(s.backend.Path(), filepath.Join(resolved, filepath.Base(s.backend.Path()))); err != nil {
		return newErr(KindIO, "backup", "failed to copy database file", err)
	}

	st := s.statsSrv.Snapshot()
	meta := fmt.Sprintf("created_at=%s\ntriple_count=%d\nschema_version=%d\n",
		time.Now().UTC().Format(time.RFC3339), st.TripleCount, backupSchemaVersion)
	if err := os.WriteFile(filepath.Join(resolved, "backup.meta"), []byte(meta), 0o600); err != nil {
		return newErr(KindIO, "backup", "failed to write backup metadata", err)
	}
	return nil
}

const backupSchemaVersion = 1

// Restore copies a backup taken by Backup from path into dest, both
// resolved against the parent of the store's own directory. It does
// not open the restored database.
func (s *Store) Restore(path, dest string) error {
	root := filepath.Dir(s.path)
	resolvedSrc, err := pathsafe.Resolve(root, path)
	if err != nil {
		return newErr(KindInvalidInput, "traversal", "restore source escapes its root", err)
	}
	resolvedDest, err := pathsafe.Resolve(root, dest)
	if err != nil {
		return newErr(KindInvalidInput, "traversal", "restore destination escapes its root", err)
	}
	entries, err := os.ReadDir(resolvedSrc)
	if err != nil {
		return newErr(KindIO, "restore", "failed to read backup directory", err)
	}
	if err := os.MkdirAll(resolvedDest, 0o755); err != nil {
		return newErr(KindIO, "restore", "failed to create restore destination", err)
	}
	found := false
	for _, e := range entries {
		if e.IsDir() || e.Name() == "backup.meta" {
			continue
		}
		if err := copyFile(filepath.Join(resolvedSrc, e.Name()), filepath.Join(resolvedDest, e.Name())); err != nil {
			return newErr(KindIO, "restore", "failed to copy database file", err)
		}
		found = true
	}
	if !found {
		return newErr(KindCorrupted, "verification_failed", "backup directory contains no database file", nil)
	}
	return nil
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o600)
}
