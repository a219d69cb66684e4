package snapret

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/kv"
)

func openTestBackend(t *testing.T) *kv.Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapret.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestCreateThenReleaseClosesSnapshot(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{})
	r.Start()
	defer r.Stop()

	h, err := r.Create(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, r.LiveCount())

	require.NoError(t, r.Release(h))
	require.Equal(t, 0, r.LiveCount())

	_, err = h.Snapshot.Get(kv.CFMeta, []byte("x"))
	require.ErrorIs(t, err, kv.ErrClosed)
}

func TestReleaseIsIdempotent(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{})
	r.Start()
	defer r.Stop()

	h, err := r.Create(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, r.Release(h))
	require.NoError(t, r.Release(h))
}

func TestSweepReleasesExpiredHandle(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{SweepInterval: 10 * time.Millisecond})
	r.Start()
	defer r.Stop()

	h, err := r.Create(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.LiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, err = h.Snapshot.Get(kv.CFMeta, []byte("x"))
	require.ErrorIs(t, err, kv.ErrClosed)
}

func TestSweepEmitsSoftWarningAt80PercentTTL(t *testing.T) {
	b := openTestBackend(t)
	warned := make(chan uint32, 1)
	r := Open(b, Options{
		SweepInterval: 5 * time.Millisecond,
		OnSoftWarning: func(id uint32) { warned <- id },
	})
	r.Start()
	defer r.Stop()

	_, err := r.Create(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)

	select {
	case <-warned:
	case <-time.After(time.Second):
		t.Fatal("expected a soft warning before TTL expiry")
	}
}

func TestOwnerContextCancellationReleasesHandle(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{})
	r.Start()
	defer r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Create(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, r.LiveCount())

	cancel()
	require.Eventually(t, func() bool {
		return r.LiveCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWithSnapshotReleasesOnSuccess(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{})
	r.Start()
	defer r.Stop()

	err := r.WithSnapshot(time.Minute, func(h Handle) error {
		require.Equal(t, 1, r.LiveCount())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, r.LiveCount())
}

func TestWithSnapshotReleasesOnError(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{})
	r.Start()
	defer r.Stop()

	sentinel := require.AnError
	err := r.WithSnapshot(time.Minute, func(h Handle) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 0, r.LiveCount())
}

func TestWithSnapshotReleasesOnPanic(t *testing.T) {
	b := openTestBackend(t)
	r := Open(b, Options{})
	r.Start()
	defer r.Stop()

	require.Panics(t, func() {
		_ = r.WithSnapshot(time.Minute, func(h Handle) error {
			panic("boom")
		})
	})
	require.Equal(t, 0, r.LiveCount())
}
