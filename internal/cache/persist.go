package cache

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/pathsafe"
)

const schemaVersion = 1

// SaveToFile writes the whole cache to path, which must resolve inside
// allowedRoot (internal/pathsafe). The format is a hand-rolled,
// versioned, length-prefixed binary record — never encoding/gob, which
// can materialise arbitrary registered types from the byte stream and
// so violates the same deserialisation-safety requirement the
// statistics snapshot format (internal/stats) is built to satisfy.
func (c *Cache) SaveToFile(path, allowedRoot string) error {
	resolved, err := pathsafe.Resolve(allowedRoot, path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	buf := make([]byte, 0, 4096)
	buf = putU32(buf, schemaVersion)
	buf = putU32(buf, uint32(c.ll.Len()))
	for e := c.ll.Front(); e != nil; e = e.Next() {
		le := e.Value.(*listEntry)
		buf = encodeListEntry(buf, le)
	}
	c.mu.Unlock()

	return os.WriteFile(resolved, buf, 0o600)
}

// LoadFromFile replaces the cache's contents with the persisted
// records in path (validated against allowedRoot). A version mismatch
// or any malformed record is rejected outright rather than partially
// applied, per the same "unknown or malformed records are absent" rule
// internal/stats applies to its own persisted snapshot.
func (c *Cache) LoadFromFile(path, allowedRoot string) error {
	resolved, err := pathsafe.Resolve(allowedRoot, path)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}

	loaded, ok := decodeFile(b)
	if !ok {
		return fmt.Errorf("cache: malformed or unsupported persistence file %q", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.entries = make(map[Key]*list.Element, len(loaded))
	c.predicateIndex = make(map[dict.ID]map[Key]struct{})
	c.totalBytes = 0

	for _, le := range loaded {
		el := c.ll.PushBack(le)
		c.entries[le.key] = el
		c.totalBytes += le.entry.ApproxBytes
		for _, p := range le.entry.Predicates {
			set, ok := c.predicateIndex[p]
			if !ok {
				set = make(map[Key]struct{})
				c.predicateIndex[p] = set
			}
			set[le.key] = struct{}{}
		}
	}
	return nil
}

func encodeListEntry(buf []byte, le *listEntry) []byte {
	buf = append(buf, le.key[:]...)
	buf = putU32(buf, uint32(le.entry.RowCount))
	buf = putI64(buf, le.entry.ApproxBytes)
	buf = putI64(buf, le.entry.CreatedAt.UnixNano())
	buf = putI64(buf, le.entry.LastAccess.UnixNano())

	buf = putU32(buf, uint32(len(le.entry.Predicates)))
	for _, p := range le.entry.Predicates {
		buf = append(buf, p.Bytes()...)
	}

	buf = putU32(buf, uint32(len(le.entry.Rows)))
	for _, row := range le.entry.Rows {
		buf = putU32(buf, uint32(len(row)))
		for v, id := range row {
			buf = putU32(buf, uint32(len(v)))
			buf = append(buf, []byte(v)...)
			buf = append(buf, id.Bytes()...)
		}
	}
	return buf
}

func putI64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func decodeFile(b []byte) ([]*listEntry, bool) {
	if len(b) < 8 {
		return nil, false
	}
	if binary.BigEndian.Uint32(b[0:4]) != schemaVersion {
		return nil, false
	}
	count := int(binary.BigEndian.Uint32(b[4:8]))
	off := 8
	out := make([]*listEntry, 0, count)

	for i := 0; i < count; i++ {
		le, n, ok := decodeListEntry(b[off:])
		if !ok {
			return nil, false
		}
		out = append(out, le)
		off += n
	}
	return out, true
}

func decodeListEntry(b []byte) (*listEntry, int, bool) {
	const fixed = 32 + 4 + 8 + 8 + 8
	if len(b) < fixed {
		return nil, 0, false
	}
	var le listEntry
	copy(le.key[:], b[0:32])
	off := 32
	le.entry.RowCount = int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	le.entry.ApproxBytes = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	le.entry.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:off+8])))
	off += 8
	le.entry.LastAccess = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:off+8])))
	off += 8

	if off+4 > len(b) {
		return nil, 0, false
	}
	nPred := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if nPred < 0 || off+nPred*8 > len(b) {
		return nil, 0, false
	}
	le.entry.Predicates = make([]dict.ID, nPred)
	for i := 0; i < nPred; i++ {
		le.entry.Predicates[i] = dict.FromBytes(b[off : off+8])
		off += 8
	}

	if off+4 > len(b) {
		return nil, 0, false
	}
	nRows := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if nRows < 0 {
		return nil, 0, false
	}
	le.entry.Rows = make([]Row, nRows)
	for i := 0; i < nRows; i++ {
		if off+4 > len(b) {
			return nil, 0, false
		}
		nBind := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		row := make(Row, nBind)
		for j := 0; j < nBind; j++ {
			if off+4 > len(b) {
				return nil, 0, false
			}
			vl := int(binary.BigEndian.Uint32(b[off : off+4]))
			off += 4
			if vl < 0 || off+vl+8 > len(b) {
				return nil, 0, false
			}
			v := algebra.Variable(b[off : off+vl])
			off += vl
			id := dict.FromBytes(b[off : off+8])
			off += 8
			row[v] = id
		}
		le.entry.Rows[i] = row
	}

	return &le, off, true
}
