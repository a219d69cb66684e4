// Package dict implements the bidirectional term⇄id dictionary
// (spec.md §4.B): inline encoding for small literals, a lock-free read
// cache, sharded single-writer allocation with block pre-claiming, and
// a crash-safe monotonic counter with a persisted safety margin.
package dict

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/term"
)

// ID is a dictionary-assigned or inline-encoded 64-bit term id.
type ID uint64

// Bytes returns the 8-byte big-endian encoding used as a key/value
// fragment in every column family.
func (id ID) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// FromBytes decodes an 8-byte big-endian id.
func FromBytes(b []byte) ID { return ID(binary.BigEndian.Uint64(b)) }

// kind partitions dictionary-allocated (non-inline) ids by term type,
// per spec.md §3 ("distinct subspaces for IRI/blank/literal to speed
// type checks").
type kind byte

const (
	kindIRI kind = iota
	kindBlank
	kindLiteral
	numKinds
)

// Non-inline ids reserve bit 63 (clear) and bits 62-61 for kind.
const (
	kindBits    = 2
	kindPos     = 61
	kindMask    = uint64(0x3)
	counterMask = (uint64(1) << kindPos) - 1
)

func classify(t term.Term) kind {
	switch t.(type) {
	case term.IRI:
		return kindIRI
	case term.Blank:
		return kindBlank
	default:
		return kindLiteral
	}
}

func makeDictID(k kind, counter uint64) ID {
	return ID(((uint64(k) & kindMask) << kindPos) | (counter & counterMask))
}

func dictKind(id ID) kind    { return kind((uint64(id) >> kindPos) & kindMask) }
func dictCounter(id ID) uint64 { return uint64(id) & counterMask }

const (
	defaultShardCount = 8
	defaultBlockSize  = 1000
	defaultMargin     = 10_000
)

var metaCounterKey = [numKinds][]byte{
	kindIRI:     []byte("dict:counter:iri"),
	kindBlank:   []byte("dict:counter:blank"),
	kindLiteral: []byte("dict:counter:literal"),
}

// Dictionary is the public contract of spec.md §4.B.
type Dictionary struct {
	backend *kv.Backend
	cache   sync.Map // canonical-bytes string -> ID, write-through, safe for concurrent readers
	counters [numKinds]*counter
	shards   []*dictShard
}

// Options configures a Dictionary.
type Options struct {
	ShardCount int // default: defaultShardCount
	BlockSize  uint64
	Margin     uint64
}

// Open constructs a Dictionary over backend, recovering each kind's
// counter from both the persisted high-water mark and a full scan of
// existing ids (starting at the larger of the mark and one past the
// highest scanned id), per spec.md §4.B's crash-recovery rule.
func Open(backend *kv.Backend, opts Options) (*Dictionary, error) {
	if opts.ShardCount <= 0 {
		opts.ShardCount = defaultShardCount
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = defaultBlockSize
	}
	if opts.Margin == 0 {
		opts.Margin = defaultMargin
	}

	d := &Dictionary{backend: backend}
	for k := kind(0); k < numKinds; k++ {
		c, err := newCounter(backend, k, opts.Margin)
		if err != nil {
			return nil, err
		}
		d.counters[k] = c
	}

	d.shards = make([]*dictShard, opts.ShardCount)
	for i := range d.shards {
		s := &dictShard{
			idx:       i,
			d:         d,
			reqCh:     make(chan shardReq),
			blockSize: opts.BlockSize,
		}
		d.shards[i] = s
		go s.run()
	}
	return d, nil
}

// Stop terminates every shard's writer goroutine. Per Open Question 4
// (DESIGN.md), this is the single, explicit stop method — no runtime
// identity probe decides between shutdown modes.
func (d *Dictionary) Stop() {
	for _, s := range d.shards {
		close(s.reqCh)
	}
}

func shardFor(b []byte, n int) int {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return int(h.Sum64() % uint64(n))
}

// GetIfPresent never allocates: it only consults the read cache and
// the backend.
func (d *Dictionary) GetIfPresent(t term.Term) (ID, bool, error) {
	if id, ok := tryInline(t); ok {
		return id, true, nil
	}
	cb := t.CanonicalBytes()
	if v, ok := d.cache.Load(string(cb)); ok {
		return v.(ID), true, nil
	}
	b, err := d.backend.Get(kv.CFStr2ID, cb)
	if err != nil {
		if err == kv.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	id := FromBytes(b)
	d.cache.Store(string(cb), id)
	return id, true, nil
}

// Decode resolves an id back to its term, decoding inline ids by pure
// computation and dictionary ids via id2str.
func (d *Dictionary) Decode(id ID) (term.Term, error) {
	if t, ok := decodeInline(id); ok {
		return t, nil
	}
	b, err := d.backend.Get(kv.CFID2Str, id.Bytes())
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, fmt.Errorf("dict: decode: %w: id %d", kv.ErrNotFound, id)
		}
		return nil, err
	}
	return term.DecodeCanonical(b)
}

// EncodeMany assigns an id to every unseen term in terms and returns
// the id for each input, preserving input order. It partitions inputs
// by shard, fans the allocation work out, and gathers the results.
// Positions sharing the same canonical bytes are deduplicated first:
// only one representative per unique term is actually allocated, and
// the resulting id is fanned out to every position that shares it —
// otherwise two occurrences of the same unseen term in one call would
// each allocate a distinct id, and only the last write would survive
// in CFStr2ID and the read cache.
func (d *Dictionary) EncodeMany(terms []term.Term) ([]ID, error) {
	out := make([]ID, len(terms))
	byShard := make(map[int][]string)          // shard idx -> unique canonical-bytes keys needing allocation
	positions := make(map[string][]int)        // canonical-bytes key -> every position sharing it
	reps := make(map[string]term.Term)         // canonical-bytes key -> representative term

	for i, t := range terms {
		if id, ok := tryInline(t); ok {
			out[i] = id
			continue
		}
		cb := t.CanonicalBytes()
		key := string(cb)
		if v, ok := d.cache.Load(key); ok {
			out[i] = v.(ID)
			continue
		}
		if b, err := d.backend.Get(kv.CFStr2ID, cb); err == nil {
			id := FromBytes(b)
			d.cache.Store(key, id)
			out[i] = id
			continue
		} else if err != kv.ErrNotFound {
			return nil, err
		}
		if _, seen := positions[key]; !seen {
			reps[key] = t
			sh := shardFor(cb, len(d.shards))
			byShard[sh] = append(byShard[sh], key)
		}
		positions[key] = append(positions[key], i)
	}

	if len(byShard) == 0 {
		return out, nil
	}

	var g errgroup.Group
	for sh, keys := range byShard {
		sh, keys := sh, keys
		g.Go(func() error {
			batch := make([]term.Term, len(keys))
			for j, key := range keys {
				batch[j] = reps[key]
			}
			ids, err := d.shards[sh].allocate(batch)
			if err != nil {
				return err
			}
			for j, key := range keys {
				for _, p := range positions[key] {
					out[p] = ids[j]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
