package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/kv"
)

const (
	defaultModificationThreshold = 10_000
	defaultTickInterval          = time.Hour
	defaultRefreshTimeout        = 60 * time.Second
)

// Options configures a Server.
type Options struct {
	BucketCount           int
	ModificationThreshold int64
	TickInterval          time.Duration
	RefreshTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.BucketCount <= 0 {
		o.BucketCount = defaultBucketCount
	}
	if o.ModificationThreshold <= 0 {
		o.ModificationThreshold = defaultModificationThreshold
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = defaultRefreshTimeout
	}
	return o
}

// Server is the single-writer statistics actor of spec.md §4.D. Reads
// (Snapshot, PredicateSelectivity, RangeSelectivity) take a read lock
// over an immutable Stats value; only Refresh ever replaces it.
type Server struct {
	backend *kv.Backend
	idx     *index.Index
	opts    Options

	mu    sync.RWMutex
	stats Stats

	modCount atomic.Int64
	sf       singleflight.Group

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open constructs a Server, loading any previously persisted snapshot.
// Start must be called separately to begin the background tick and
// modification-triggered refresh loop.
func Open(backend *kv.Backend, idx *index.Index, opts Options) (*Server, error) {
	s := &Server{backend: backend, idx: idx, opts: opts.withDefaults(), stopCh: make(chan struct{})}
	if persisted, ok := loadPersisted(backend); ok {
		s.stats = persisted
	} else {
		s.stats = emptyStats()
	}
	return s, nil
}

// Start launches the background loop: a periodic tick that rebuilds
// only if something changed, running alongside the modification-count
// trigger driven by NotifyModified.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Server) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.modCount.Load() > 0 {
				s.triggerRebuild()
			}
		case <-s.stopCh:
			// Persist the last snapshot on terminate (spec.md §4.D).
			s.mu.RLock()
			st := s.stats
			s.mu.RUnlock()
			_ = persist(s.backend, st)
			return
		}
	}
}

// Stop terminates the background loop and persists the current
// snapshot before returning.
func (s *Server) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// NotifyModified records n load/insert/delete operations. Crossing the
// modification threshold schedules exactly one background rebuild;
// concurrent crossings collapse onto that same in-flight rebuild via
// singleflight, so no extra boolean flag is needed to suppress
// duplicate rebuilds.
func (s *Server) NotifyModified(n int) {
	if s.modCount.Add(int64(n)) >= s.opts.ModificationThreshold {
		s.triggerRebuild()
	}
}

func (s *Server) triggerRebuild() {
	go func() {
		_, _, _ = s.sf.Do("rebuild", func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshTimeout)
			defer cancel()
			return nil, s.Refresh(ctx)
		})
	}()
}

// Refresh rebuilds the statistics synchronously, bounded by ctx. When
// ctx carries no deadline, the rebuild is bounded by
// opts.RefreshTimeout (60s by default), so no refresh waits without
// limit.
func (s *Server) Refresh(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RefreshTimeout)
		defer cancel()
	}
	st, err := collect(ctx, s.idx, s.opts.BucketCount)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
	s.modCount.Store(0)
	return persist(s.backend, st)
}

// Snapshot returns the current statistics.
func (s *Server) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// defaultSelectivity is used when no histogram entry exists for a
// predicate — an unknown predicate is assumed moderately selective
// rather than either extreme.
const defaultSelectivity = 0.1

// PredicateSelectivity returns histogram[p] / triple_count, or a
// default heuristic if p has never been observed.
func (s *Server) PredicateSelectivity(p dict.ID) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats.TripleCount == 0 {
		return defaultSelectivity
	}
	c, ok := s.stats.PredicateHistogram[p]
	if !ok {
		return defaultSelectivity
	}
	return float64(c) / float64(s.stats.TripleCount)
}

// RangeSelectivity integrates p's numeric histogram over [lo, hi],
// pro-rating the two edge buckets by how much of their width the
// range actually covers.
func (s *Server) RangeSelectivity(p dict.ID, lo, hi float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.stats.NumericHistograms[p]
	if !ok || h.Total == 0 {
		return s.predicateSelectivityLocked(p)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	lo = clamp(lo, h.Min, h.Max)
	hi = clamp(hi, h.Min, h.Max)
	if hi < h.Min || lo > h.Max {
		return 0
	}

	var matched float64
	for i := 0; i < h.BucketCount; i++ {
		bucketLo := h.Min + float64(i)*h.BucketWidth
		bucketHi := bucketLo + h.BucketWidth
		overlapLo, overlapHi := max64(lo, bucketLo), min64(hi, bucketHi)
		if overlapHi <= overlapLo {
			continue
		}
		frac := (overlapHi - overlapLo) / h.BucketWidth
		matched += frac * float64(h.Buckets[i])
	}
	return matched / float64(h.Total)
}

func (s *Server) predicateSelectivityLocked(p dict.ID) float64 {
	if s.stats.TripleCount == 0 {
		return defaultSelectivity
	}
	c, ok := s.stats.PredicateHistogram[p]
	if !ok {
		return defaultSelectivity
	}
	return float64(c) / float64(s.stats.TripleCount)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
