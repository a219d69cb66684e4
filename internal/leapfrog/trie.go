// Package leapfrog implements worst-case-optimal multi-way join by
// variable elimination over the triple indices (spec.md §4.F): a trie
// iterator per (pattern, variable) pair, a leapfrog join that
// intersects a set of trie iterators sharing a join variable, and a
// multi-level {descend|advance|backtrack} executor that drives the
// whole variable elimination order to completion.
package leapfrog

import (
	"encoding/binary"
	"math"

	"github.com/nqrdf/tristore/internal/kv"
)

// TrieIterator walks one physical triple index at a fixed level
// L ∈ {0,1,2} — the byte range key[8L:8L+8] — bounded to a prefix
// fixed by the levels below L. The invariant is
// byte_length(prefix) == 8*level: every earlier level has already been
// committed to a concrete value (by an enclosing leapfrog level) before
// this iterator is constructed.
type TrieIterator struct {
	cur       *kv.Cursor
	prefix    []byte
	level     int
	current   uint64
	exhausted bool
}

// NewTrieIterator wraps cur (already opened over the physical index
// with the cursor's own fixed prefix) as a trie iterator over the
// level-th 8-byte segment of its keys. It positions itself at the
// smallest value immediately.
func NewTrieIterator(cur *kv.Cursor, level int) *TrieIterator {
	t := &TrieIterator{cur: cur, prefix: cur.Prefix(), level: level}
	t.Seek(0)
	return t
}

// Seek repositions the iterator at the smallest key >= prefix ∥ target
// ∥ zero_tail that still shares prefix. It returns false (and exhausts
// the iterator) if no such key exists.
func (t *TrieIterator) Seek(target uint64) bool {
	prefixLen := 8 * t.level
	buf := make([]byte, prefixLen+8)
	copy(buf, t.prefix)
	binary.BigEndian.PutUint64(buf[prefixLen:prefixLen+8], target)

	if !t.cur.Seek(buf) {
		t.exhausted = true
		return false
	}
	key, _ := t.cur.KV()
	if len(key) < prefixLen+8 {
		t.exhausted = true
		return false
	}
	t.current = binary.BigEndian.Uint64(key[prefixLen : prefixLen+8])
	t.exhausted = false
	return true
}

// Next advances to the smallest key whose level-L value is strictly
// greater than the current one.
func (t *TrieIterator) Next() bool {
	if t.exhausted {
		return false
	}
	if t.current == math.MaxUint64 {
		t.exhausted = true
		return false
	}
	return t.Seek(t.current + 1)
}

// Current returns the iterator's current level-L value, or ok=false if
// exhausted.
func (t *TrieIterator) Current() (uint64, bool) {
	if t.exhausted {
		return 0, false
	}
	return t.current, true
}

// Close releases the underlying cursor.
func (t *TrieIterator) Close() error {
	return t.cur.Close()
}
