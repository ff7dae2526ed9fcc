package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Named lock classes. Operations that can conflict on the same rows must
// hold the corresponding mutex before opening their transaction; this is
// the primary defense against overselling, with optimistic versioning as
// the secondary one.
const (
	LockAccounting = "accounting"
	LockInventory  = "inventory"
	LockSales      = "sales"
)

// fifoMutex grants the lock strictly in arrival order. Waiters block on a
// channel, so acquisition is an async suspension point, not a spin.
type fifoMutex struct {
	mu     sync.Mutex
	queue  []chan struct{}
	locked bool
}

func (m *fifoMutex) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked && len(m.queue) == 0 {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.queue = append(m.queue, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, c := range m.queue {
			if c == ch {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		// The lock was handed to us while we were cancelling; give it back.
		m.Release()
		return ctx.Err()
	}
}

func (m *fifoMutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		ch := m.queue[0]
		m.queue = m.queue[1:]
		close(ch) // lock stays held, ownership transfers to the head waiter
		return
	}
	m.locked = false
}

// LockSet holds the engine's named mutexes.
type LockSet struct {
	mutexes map[string]*fifoMutex
}

func NewLockSet() *LockSet {
	return &LockSet{
		mutexes: map[string]*fifoMutex{
			LockAccounting: {},
			LockInventory:  {},
			LockSales:      {},
		},
	}
}

// Acquire takes the named mutexes in a canonical (sorted) order so two
// operations wanting overlapping sets can never deadlock. The returned
// release function unlocks in reverse order; it is safe to call once.
func (s *LockSet) Acquire(ctx context.Context, names ...string) (func(), error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	acquired := make([]*fifoMutex, 0, len(sorted))
	releaseAll := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Release()
		}
	}
	for _, name := range sorted {
		m, ok := s.mutexes[name]
		if !ok {
			releaseAll()
			return nil, fmt.Errorf("unknown lock %q", name)
		}
		if err := m.Acquire(ctx); err != nil {
			releaseAll()
			return nil, err
		}
		acquired = append(acquired, m)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
