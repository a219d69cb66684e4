// Package snapret implements the snapshot registry of spec.md §4.H:
// TTL-tracked handles over internal/kv snapshots, auto-released on
// expiry or on the owning context's cancellation, with a periodic
// sweep that also emits a soft warning at 80% of TTL.
package snapret

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/nqrdf/tristore/internal/kv"
)

// ErrClosed is returned by operations on a handle the registry has
// already released.
var ErrClosed = fmt.Errorf("snapret: handle closed")

const defaultSweepInterval = time.Minute

// Handle is a registry-issued, TTL-bounded view onto the store. The
// embedded Snapshot is only valid until the handle is released (by the
// caller, by TTL expiry, or by the owning context's cancellation).
type Handle struct {
	id       uint32
	Snapshot *kv.Snapshot
}

type entry struct {
	snapshot   *kv.Snapshot
	createdAt  time.Time
	ttl        time.Duration
	warned     bool
	cancelFunc context.CancelFunc // stops this handle's owner-watch goroutine
}

// Options configures a Registry.
type Options struct {
	SweepInterval time.Duration
	// OnSoftWarning, if set, is called (off the sweep goroutine's own
	// critical section) when a handle crosses 80% of its TTL without
	// being released. internal/snapret itself never logs (spec.md's
	// ambient-stack split keeps internal/* silent); callers that want
	// this surfaced — cmd/tristore in particular — wire a callback here.
	OnSoftWarning func(id uint32)
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	return o
}

// Registry is the single-writer actor of spec.md §5: all mutation goes
// through a mutex-guarded map, mirroring internal/stats.Server's shape
// rather than introducing a second, channel-based actor idiom.
type Registry struct {
	backend *kv.Backend
	opts    Options

	mu      sync.Mutex
	live    *roaring.Bitmap
	entries map[uint32]*entry
	nextID  uint32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open constructs a Registry over backend. Start must be called
// separately to begin the periodic sweep.
func Open(backend *kv.Backend, opts Options) *Registry {
	return &Registry{
		backend: backend,
		opts:    opts.withDefaults(),
		live:    roaring.New(),
		entries: make(map[uint32]*entry),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.sweepLoop()
}

// Stop terminates the sweep and releases every outstanding handle.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	ids := make([]uint32, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.releaseID(id)
	}
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()
	r.mu.Lock()
	var expired []uint32
	var warn []uint32
	for id, e := range r.entries {
		age := now.Sub(e.createdAt)
		if age >= e.ttl {
			expired = append(expired, id)
			continue
		}
		if !e.warned && age >= (e.ttl*8)/10 {
			e.warned = true
			warn = append(warn, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		_ = r.releaseID(id)
	}
	if r.opts.OnSoftWarning != nil {
		for _, id := range warn {
			r.opts.OnSoftWarning(id)
		}
	}
}

// Create issues a new handle with the given ttl, releasing it
// automatically when ctx is done (owner termination) or when the sweep
// finds it past its ttl — whichever comes first.
func (r *Registry) Create(ctx context.Context, ttl time.Duration) (Handle, error) {
	snap, err := r.backend.Snapshot()
	if err != nil {
		return Handle{}, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.live.Add(id)
	r.entries[id] = &entry{snapshot: snap, createdAt: time.Now(), ttl: ttl, cancelFunc: cancel}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.watchOwner(ctx, watchCtx, id)

	return Handle{id: id, Snapshot: snap}, nil
}

func (r *Registry) watchOwner(ownerCtx, watchCtx context.Context, id uint32) {
	defer r.wg.Done()
	select {
	case <-ownerCtx.Done():
		_ = r.releaseID(id)
	case <-watchCtx.Done():
		// handle already released through another path
	}
}

// Release releases h. Releasing an already-released handle is a no-op.
func (r *Registry) Release(h Handle) error {
	return r.releaseID(h.id)
}

func (r *Registry) releaseID(id uint32) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, id)
	r.live.Remove(id)
	r.mu.Unlock()

	e.cancelFunc()
	return e.snapshot.Close()
}

// WithSnapshot creates a handle, passes it to fn, and releases it on
// every exit path — success, error return, or panic.
func (r *Registry) WithSnapshot(ttl time.Duration, fn func(Handle) error) (err error) {
	h, err := r.Create(context.Background(), ttl)
	if err != nil {
		return err
	}
	defer func() {
		relErr := r.Release(h)
		if err == nil {
			err = relErr
		}
	}()
	return fn(h)
}

// LiveCount reports the number of outstanding handles.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.live.GetCardinality())
}
