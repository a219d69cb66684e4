package dict

import (
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/term"
)

// dictShard is a single-writer actor owning a disjoint slice of each
// kind's id space (spec.md §4.B point 2-3). It pre-claims blocks of
// ids from the shared counters so the counter-crossing CAS happens
// once per block, not once per term.
type dictShard struct {
	idx       int
	d         *Dictionary
	reqCh     chan shardReq
	blockSize uint64

	// per-kind local block cursor: [cursor, end) is this shard's
	// currently-claimed, unused id range for that kind.
	cursor [numKinds]uint64
	end    [numKinds]uint64
}

type shardReq struct {
	terms []term.Term
	resp  chan shardResp
}

type shardResp struct {
	ids []ID
	err error
}

// run is the actor loop: it serializes every allocation request for
// this shard, so no locking is needed within allocate.
func (s *dictShard) run() {
	for req := range s.reqCh {
		ids, err := s.allocateLocked(req.terms)
		req.resp <- shardResp{ids: ids, err: err}
	}
}

// allocate sends terms to this shard's actor and waits for the result.
func (s *dictShard) allocate(terms []term.Term) ([]ID, error) {
	resp := make(chan shardResp, 1)
	s.reqCh <- shardReq{terms: terms, resp: resp}
	r := <-resp
	return r.ids, r.err
}

// nextID returns the next id for kind k, claiming a fresh block from
// the shared counter when this shard's local range is exhausted.
func (s *dictShard) nextID(k kind) (ID, error) {
	if s.cursor[k] >= s.end[k] {
		start, err := s.d.counters[k].allocBlock(s.blockSize)
		if err != nil {
			return 0, err
		}
		s.cursor[k] = start
		s.end[k] = start + s.blockSize
	}
	c := s.cursor[k]
	s.cursor[k]++
	return makeDictID(k, c), nil
}

// allocateLocked runs only on this shard's own goroutine: it looks up
// or allocates an id for every term, then commits every (str2id,
// id2str) pair in one atomic batch before populating the read cache.
// Positions sharing the same canonical bytes within this single batch
// are deduplicated, so a caller passing in duplicate terms (e.g. a
// batch that skipped EncodeMany's own dedup) still gets one id per
// unique term rather than racing two allocations against each other.
func (s *dictShard) allocateLocked(terms []term.Term) ([]ID, error) {
	ids := make([]ID, len(terms))
	canon := make([][]byte, len(terms))
	seen := make(map[string]ID, len(terms))
	var ops []kv.Op

	for i, t := range terms {
		cb := t.CanonicalBytes()
		canon[i] = cb
		key := string(cb)

		if id, ok := seen[key]; ok {
			ids[i] = id
			continue
		}

		// Re-check the backend: another process (or a prior call
		// before this shard existed) may already have assigned this
		// term an id. Terms are routed deterministically to exactly
		// one shard by canonical bytes, so no other in-process shard
		// can race us on the same term.
		if b, err := s.d.backend.Get(kv.CFStr2ID, cb); err == nil {
			id := FromBytes(b)
			ids[i] = id
			seen[key] = id
			continue
		} else if err != kv.ErrNotFound {
			return nil, err
		}

		id, err := s.nextID(classify(t))
		if err != nil {
			return nil, err
		}
		ids[i] = id
		seen[key] = id
		ops = append(ops,
			kv.Op{Kind: kv.OpPut, CF: kv.CFStr2ID, Key: cb, Value: id.Bytes()},
			kv.Op{Kind: kv.OpPut, CF: kv.CFID2Str, Key: id.Bytes(), Value: cb},
		)
	}

	if len(ops) > 0 {
		if err := s.d.backend.WriteBatch(ops, kv.WriteOptions{Sync: true}); err != nil {
			return nil, err
		}
	}

	for i, cb := range canon {
		s.d.cache.Store(string(cb), ids[i])
	}
	return ids, nil
}
