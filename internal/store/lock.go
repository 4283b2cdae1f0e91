package store

import (
	"context"
	"sync"
	"time"
)

// lockTable hands out exclusive per-key locks. A held lock is a channel that
// is closed on release, which wakes every waiter to retry.
type lockTable struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]chan struct{})}
}

func (lt *lockTable) acquire(ctx context.Context, id string, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		lt.mu.Lock()
		ch, busy := lt.held[id]
		if !busy {
			lt.held[id] = make(chan struct{})
			lt.mu.Unlock()
			return nil
		}
		lt.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return ErrLockTimeout
		}
	}
}

func (lt *lockTable) release(id string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if ch, ok := lt.held[id]; ok {
		close(ch)
		delete(lt.held, id)
	}
}
