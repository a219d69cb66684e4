// Package kv wraps an embedded ordered key-value store (bbolt) behind
// a column-family-shaped API: get/put/delete, prefix iteration with a
// correctness-checked "stop at prefix boundary" contract, atomic write
// batches, and snapshots. This is component A of the triple store
// (spec.md §4.A).
//
// A bbolt bucket plays the role of a column family. bbolt read
// transactions are already MVCC snapshots of the whole database (no
// page referenced by an open read transaction is ever reused until
// that transaction ends), so Snapshot is a thin wrapper rather than new
// machinery — the same property spec.md §4.H's snapshot registry
// depends on.
package kv

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned by Get/Snapshot.Get for a missing key. It is
// distinct from any I/O error, per spec.md §4.A's failure contract.
var ErrNotFound = errors.New("kv: not found")

// ErrClosed is returned by any operation on a closed Backend.
var ErrClosed = errors.New("kv: closed")

// CF identifies a column family (a bbolt bucket).
type CF string

// The column families fixed by the storage layout in spec.md §3.
const (
	CFStr2ID CF = "str2id" // dictionary: point access, full-key bloom semantics n/a for bbolt
	CFID2Str CF = "id2str" // dictionary: point access
	CFSPO    CF = "spo"    // triple index: prefix scan
	CFPOS    CF = "pos"    // triple index: prefix scan
	CFOSP    CF = "osp"    // triple index: prefix scan
	CFRange  CF = "numeric_range"
	CFMeta   CF = "meta" // versioned blobs: stats, counters
)

// AllCFs lists every column family created on Open.
var AllCFs = []CF{CFStr2ID, CFID2Str, CFSPO, CFPOS, CFOSP, CFRange, CFMeta}

// Options configures Open.
type Options struct {
	// CreateIfMissing creates the database file (and its buckets) if it
	// does not already exist.
	CreateIfMissing bool
}

// Backend is the CF-over-ordered-KV wrapper.
type Backend struct {
	db     *bbolt.DB
	path   string
	closed bool
}

// Open opens (or creates, if opts.CreateIfMissing) a bbolt database at
// path and ensures every column family bucket exists.
func Open(path string, opts Options) (*Backend, error) {
	if !opts.CreateIfMissing {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("kv: open %s: %w", path, err)
		}
	}
	db, err := bbolt.Open(path, 0o666, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	b := &Backend{db: db, path: path}
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, cf := range AllCFs {
			if _, err := tx.CreateBucketIfNotExists([]byte(cf)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: setup buckets: %w", err)
	}
	return b, nil
}

// Path returns the on-disk path of the database file.
func (b *Backend) Path() string { return b.path }

// Close releases the database file lock.
func (b *Backend) Close() error {
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	return b.db.Close()
}

// Get returns a copy of the value for key in cf, or ErrNotFound.
func (b *Backend) Get(cf CF, key []byte) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(cf))
		if bkt == nil {
			return fmt.Errorf("kv: unknown column family %q", cf)
		}
		v := bkt.Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpKind is the kind of mutation in a WriteBatch entry.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
)

// Op is one mutation within a write batch.
type Op struct {
	Kind  OpKind
	CF    CF
	Key   []byte
	Value []byte // unused for OpDelete
}

// WriteOptions controls durability of a batch.
type WriteOptions struct {
	// Sync forces an fsync on commit when true. Bulk loads may set this
	// false for every batch but the last, trading a window of
	// unsynced writes (recoverable: bbolt's own write-ahead mechanism
	// keeps the file structurally consistent; only the most recent
	// unsynced commits can be lost) for throughput, then issue one
	// final synced batch.
	Sync bool
}

// WriteBatch applies every op atomically: either all of them are
// visible to subsequent readers, or none are (spec.md §3 "a write
// batch is the unit of atomicity").
func (b *Backend) WriteBatch(ops []Op, opts WriteOptions) error {
	if b.closed {
		return ErrClosed
	}
	prevNoSync := b.db.NoSync
	b.db.NoSync = !opts.Sync
	defer func() { b.db.NoSync = prevNoSync }()

	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range ops {
			bkt := tx.Bucket([]byte(op.CF))
			if bkt == nil {
				return fmt.Errorf("kv: unknown column family %q", op.CF)
			}
			switch op.Kind {
			case OpPut:
				if err := bkt.Put(op.Key, op.Value); err != nil {
					return err
				}
			case OpDelete:
				if err := bkt.Delete(op.Key); err != nil {
					return err
				}
			default:
				return fmt.Errorf("kv: unknown op kind %d", op.Kind)
			}
		}
		return nil
	})
}

// Put is a convenience single-op WriteBatch.
func (b *Backend) Put(cf CF, key, value []byte) error {
	return b.WriteBatch([]Op{{Kind: OpPut, CF: cf, Key: key, Value: value}}, WriteOptions{Sync: true})
}

// Delete is a convenience single-op WriteBatch.
func (b *Backend) Delete(cf CF, key []byte) error {
	return b.WriteBatch([]Op{{Kind: OpDelete, CF: cf, Key: key}}, WriteOptions{Sync: true})
}

// Snapshot is a long-lived read view. It holds a bbolt read
// transaction open, which pins the pages it can see — callers must
// Close it promptly (spec.md §4.H's snapshot registry exists
// specifically to enforce this).
type Snapshot struct {
	tx     *bbolt.Tx
	closed bool
}

// Snapshot takes a new read view of the database.
func (b *Backend) Snapshot() (*Snapshot, error) {
	if b.closed {
		return nil, ErrClosed
	}
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("kv: begin snapshot: %w", err)
	}
	return &Snapshot{tx: tx}, nil
}

// Close releases the snapshot's underlying read transaction.
func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.tx.Rollback()
}

// Get reads key from cf as of the snapshot's point in time.
func (s *Snapshot) Get(cf CF, key []byte) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	bkt := s.tx.Bucket([]byte(cf))
	if bkt == nil {
		return nil, fmt.Errorf("kv: unknown column family %q", cf)
	}
	v := bkt.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Cursor scans one column family, bounded to keys sharing a fixed
// prefix. It enforces the "iteration stops as soon as the cursor
// leaves prefix" contract with an explicit bytes.HasPrefix check on
// every step — bbolt's lexicographic ordering makes this cheap (one
// failed comparison ends the scan) but is never trusted alone.
type Cursor struct {
	cur        *bbolt.Cursor
	prefix     []byte
	snap       *Snapshot // non-nil when this cursor owns a private snapshot
	key, value []byte
	valid      bool
	closed     bool
}

// PrefixIterator opens a cursor over cf bounded to prefix, backed by a
// new private snapshot. The cursor owns that snapshot and releases it
// on Close.
func (b *Backend) PrefixIterator(cf CF, prefix []byte) (*Cursor, error) {
	snap, err := b.Snapshot()
	if err != nil {
		return nil, err
	}
	c, err := snap.PrefixIterator(cf, prefix)
	if err != nil {
		_ = snap.Close()
		return nil, err
	}
	c.snap = snap
	return c, nil
}

// PrefixIterator opens a cursor over cf bounded to prefix, backed by
// this (caller-owned) snapshot. The cursor does not close the
// snapshot.
func (s *Snapshot) PrefixIterator(cf CF, prefix []byte) (*Cursor, error) {
	if s.closed {
		return nil, ErrClosed
	}
	bkt := s.tx.Bucket([]byte(cf))
	if bkt == nil {
		return nil, fmt.Errorf("kv: unknown column family %q", cf)
	}
	return &Cursor{cur: bkt.Cursor(), prefix: append([]byte(nil), prefix...)}, nil
}

// Seek repositions the cursor at the smallest key >= target that still
// shares the cursor's prefix. It returns false (and exhausts the
// cursor) if no such key exists.
func (c *Cursor) Seek(target []byte) bool {
	if c.closed {
		c.valid = false
		return false
	}
	k, v := c.cur.Seek(target)
	return c.settle(k, v)
}

// First repositions the cursor at the smallest key sharing the prefix.
func (c *Cursor) First() bool {
	return c.Seek(c.prefix)
}

// Next advances to the next key sharing the prefix.
func (c *Cursor) Next() bool {
	if c.closed || !c.valid {
		return false
	}
	k, v := c.cur.Next()
	return c.settle(k, v)
}

func (c *Cursor) settle(k, v []byte) bool {
	if k == nil || !bytes.HasPrefix(k, c.prefix) {
		c.valid = false
		c.key, c.value = nil, nil
		return false
	}
	c.valid = true
	c.key = append([]byte(nil), k...)
	c.value = append([]byte(nil), v...)
	return true
}

// KV returns the cursor's current key and value. Valid only after a
// Seek/First/Next call returned true.
func (c *Cursor) KV() (key, value []byte) { return c.key, c.value }

// Prefix returns a copy of the byte prefix this cursor is bounded to.
// The leapfrog trie iterator needs this to compute seek targets
// without duplicating the cursor's own boundary bookkeeping.
func (c *Cursor) Prefix() []byte { return append([]byte(nil), c.prefix...) }

// Valid reports whether the cursor currently points at an in-prefix
// entry.
func (c *Cursor) Valid() bool { return c.valid }

// Close releases any private snapshot the cursor opened.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.snap != nil {
		return c.snap.Close()
	}
	return nil
}
