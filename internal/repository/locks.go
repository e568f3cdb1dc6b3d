package repository

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// writerWeight is the full capacity of a handle; a writer excludes everyone
const writerWeight = 1 << 30

// LockArena holds one reader/writer lock handle per root application,
// indexed by application ID. Handles are reference counted and dropped when
// idle, so lock lifetime is independent of any application record.
//
// Acquisition is FIFO: once a writer is queued, later readers wait behind it,
// while readers queued ahead of it run concurrently. Cancelling the context of
// a pending acquisition removes it from the queue.
type LockArena struct {
	mu      sync.Mutex
	handles map[string]*lockHandle
}

type lockHandle struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLockArena() *LockArena {
	return &LockArena{handles: make(map[string]*lockHandle)}
}

// Lock acquires the exclusive lock for id. The returned release func is safe
// to call more than once.
func (a *LockArena) Lock(ctx context.Context, id string) (func(), error) {
	return a.acquire(ctx, id, writerWeight)
}

// RLock acquires a shared lock for id
func (a *LockArena) RLock(ctx context.Context, id string) (func(), error) {
	return a.acquire(ctx, id, 1)
}

func (a *LockArena) acquire(ctx context.Context, id string, weight int64) (func(), error) {
	a.mu.Lock()
	h, ok := a.handles[id]
	if !ok {
		h = &lockHandle{sem: semaphore.NewWeighted(writerWeight)}
		a.handles[id] = h
	}
	h.refs++
	a.mu.Unlock()

	if err := h.sem.Acquire(ctx, weight); err != nil {
		a.unref(id, h)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.sem.Release(weight)
			a.unref(id, h)
		})
	}, nil
}

func (a *LockArena) unref(id string, h *lockHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h.refs--
	if h.refs == 0 {
		delete(a.handles, id)
	}
}

// Len returns the number of live handles
func (a *LockArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}
