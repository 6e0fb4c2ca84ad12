package pool

import "sync"

// lockTable provides one mutex per pool so mutations to a single pool are
// serialized while operations on different pools run in parallel.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for poolID, creating it on first use, and
// returns the unlock function.
func (t *lockTable) lock(poolID string) func() {
	t.mu.Lock()
	m, ok := t.locks[poolID]
	if !ok {
		m = &sync.Mutex{}
		t.locks[poolID] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// LockPool acquires the per-pool mutex. Exposed so the reward distributor
// and governance engine serialize against user-initiated operations on
// the same pool.
func (s *Service) LockPool(poolID string) func() {
	return s.locks.lock(poolID)
}
