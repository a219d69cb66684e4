package dict

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/nqrdf/tristore/internal/kv"
)

// counter is one kind's monotonic id allocator: a fast in-memory
// atomic cursor, backed by a persisted high-water mark that stays above
// every id handed out. A claim that crosses the mark persists a new
// mark `margin` past the claim, so meta is written about once per
// `margin` allocations, not per id (spec.md §4.B point 5).
type counter struct {
	next          atomic.Uint64 // next counter value to hand out
	persistedHigh atomic.Uint64 // value currently durable in meta
	persistMu     sync.Mutex    // serializes the meta write when crossing persistedHigh
	backend       *kv.Backend
	k             kind
	margin        uint64
}

func newCounter(backend *kv.Backend, k kind, margin uint64) (*counter, error) {
	c := &counter{backend: backend, k: k, margin: margin}

	persisted, err := readCounterMeta(backend, k)
	if err != nil {
		return nil, err
	}
	scanned, err := scanHighWaterMark(backend, k)
	if err != nil {
		return nil, err
	}
	start := persisted
	if scanned+1 > start {
		start = scanned + 1
	}
	c.next.Store(start)

	high := start + margin
	if err := writeCounterMeta(backend, k, high); err != nil {
		return nil, err
	}
	c.persistedHigh.Store(high)
	return c, nil
}

// allocBlock atomically claims [start, start+n) from the counter,
// persisting a new safety margin whenever the claim would cross the
// last persisted high-water mark.
func (c *counter) allocBlock(n uint64) (uint64, error) {
	start := c.next.Add(n) - n
	end := start + n

	if end > c.persistedHigh.Load() {
		c.persistMu.Lock()
		defer c.persistMu.Unlock()
		if end > c.persistedHigh.Load() {
			newHigh := end + c.margin
			if err := writeCounterMeta(c.backend, c.k, newHigh); err != nil {
				return 0, err
			}
			c.persistedHigh.Store(newHigh)
		}
	}
	return start, nil
}

func readCounterMeta(backend *kv.Backend, k kind) (uint64, error) {
	v, err := backend.Get(kv.CFMeta, metaCounterKey[k])
	if err != nil {
		if err == kv.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(v) != 8 {
		return 0, nil // malformed record treated as absent, never trusted
	}
	return binary.BigEndian.Uint64(v), nil
}

func writeCounterMeta(backend *kv.Backend, k kind, v uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return backend.Put(kv.CFMeta, metaCounterKey[k], b)
}

// scanHighWaterMark finds the highest counter value already present in
// id2str for kind k, used on Open to make sure a persisted counter that
// predates a crash-during-allocation is never trusted below what was
// actually committed. This is a full scan of that kind's id subspace;
// it runs once per Open, not on the hot path.
func scanHighWaterMark(backend *kv.Backend, k kind) (uint64, error) {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(k)<<kindPos)
	// Only the top (kindBits) bits of the prefix are meaningful; scan
	// the whole id2str space and filter by kind, since ids are not
	// otherwise grouped contiguously enough to prefix-scan cheaply
	// across the full 8-byte key with a partial top-bit match.
	cur, err := backend.PrefixIterator(kv.CFID2Str, nil)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var max uint64
	for ok := cur.First(); ok; ok = cur.Next() {
		key, _ := cur.KV()
		if len(key) != 8 {
			continue
		}
		id := FromBytes(key)
		if isInline(id) || dictKind(id) != k {
			continue
		}
		if c := dictCounter(id); c > max {
			max = c
		}
	}
	return max, nil
}
