package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acquired reports whether ch fires within d
func acquired(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func TestLockIsExclusive(t *testing.T) {
	arena := NewLockArena()
	ctx := context.Background()

	release, err := arena.Lock(ctx, "app-1")
	require.NoError(t, err)

	got := make(chan struct{})
	go func() {
		r, err := arena.Lock(ctx, "app-1")
		if err == nil {
			close(got)
			r()
		}
	}()

	assert.False(t, acquired(got, 50*time.Millisecond), "second writer must wait")
	release()
	assert.True(t, acquired(got, time.Second), "second writer runs after release")
}

func TestReadersShare(t *testing.T) {
	arena := NewLockArena()
	ctx := context.Background()

	r1, err := arena.RLock(ctx, "app-1")
	require.NoError(t, err)
	defer r1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	r2, err := arena.RLock(ctx2, "app-1")
	require.NoError(t, err, "readers run concurrently")
	r2()
}

func TestQueuedWriterBlocksLaterReaders(t *testing.T) {
	arena := NewLockArena()
	ctx := context.Background()

	reader, err := arena.RLock(ctx, "app-1")
	require.NoError(t, err)

	writerIn := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		w, err := arena.Lock(ctx, "app-1")
		if err != nil {
			return
		}
		close(writerIn)
		time.Sleep(20 * time.Millisecond)
		w()
		close(writerDone)
	}()

	// Give the writer time to queue behind the reader
	time.Sleep(50 * time.Millisecond)

	late, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = arena.RLock(late, "app-1")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "a reader arriving after a queued writer waits")

	reader()
	assert.True(t, acquired(writerIn, time.Second))
	assert.True(t, acquired(writerDone, time.Second))

	r, err := arena.RLock(ctx, "app-1")
	require.NoError(t, err)
	r()
}

func TestCancelledPendingAcquisitionLeavesQueue(t *testing.T) {
	arena := NewLockArena()
	ctx := context.Background()

	release, err := arena.Lock(ctx, "app-1")
	require.NoError(t, err)

	pending, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := arena.Lock(pending, "app-1")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("cancelled acquisition did not return")
	}

	release()
	release() // idempotent
	assert.Equal(t, 0, arena.Len(), "idle handles are dropped")

	next, err := arena.Lock(ctx, "app-1")
	require.NoError(t, err)
	next()
}

func TestLocksAreIndependentPerApplication(t *testing.T) {
	arena := NewLockArena()
	ctx := context.Background()

	a, err := arena.Lock(ctx, "app-1")
	require.NoError(t, err)
	defer a()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	b, err := arena.Lock(ctx2, "app-2")
	require.NoError(t, err)
	b()
}

func TestLockSerializesWriters(t *testing.T) {
	arena := NewLockArena()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := arena.Lock(ctx, "app-1")
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, arena.Len())
}
