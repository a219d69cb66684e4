package tristore

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// Options configures Open.
type Options struct {
	// CreateIfMissing creates the database file (and its column
	// families) if it does not already exist; without it, Open fails on
	// a missing file.
	CreateIfMissing bool

	// ShardCount is the dictionary's writer-shard count (internal/dict).
	// Zero uses internal/dict's default.
	ShardCount int

	// CacheMaxEntries bounds the result cache's entry count. Zero uses
	// internal/cache's default.
	CacheMaxEntries int

	// CacheMaxMemory bounds the result cache's approximate memory
	// footprint. Zero means unbounded.
	CacheMaxMemory datasize.ByteSize

	// CacheMaxResultSize is the row-count ceiling above which a query
	// result is not cached. Zero uses internal/cache's default.
	CacheMaxResultSize int

	// CacheTTL is the result cache entry lifetime. Zero uses
	// internal/cache's default.
	CacheTTL time.Duration

	// SnapshotSweepInterval is the snapshot registry's periodic TTL
	// sweep period. Zero uses internal/snapret's default.
	SnapshotSweepInterval time.Duration

	// OnSnapshotSoftWarning, if set, is called when an outstanding
	// snapshot handle crosses 80% of its TTL without being released.
	OnSnapshotSoftWarning func(id uint32)
}

// QueryOptions controls one Query call.
type QueryOptions struct {
	// Deadline bounds total wall-clock time for the query. Zero means
	// the default of 30s.
	Deadline time.Duration

	// MaxIterations bounds the seeks of each leapfrog Join.Search. Zero
	// means the default of 1,000,000.
	MaxIterations int

	// UseCache consults and populates the result cache.
	UseCache bool

	// NoCache forces this query to skip the cache even if it would
	// otherwise be cacheable, without disabling the cache for other
	// queries (spec.md §4.G's "explicitly no_cache").
	NoCache bool
}

const (
	defaultDeadline      = 30 * time.Second
	defaultMaxIterations = 1_000_000
)

func (o QueryOptions) withDefaults() QueryOptions {
	if o.Deadline <= 0 {
		o.Deadline = defaultDeadline
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	return o
}
