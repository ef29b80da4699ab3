package tiering

import "sync"

// partitionLocks serializes the archive and restore state machines per
// partition name, so concurrent API calls can never race an archive against
// a restore of the same partition. Locks are never reclaimed; the set of
// partition names a deployment ever sees is small and bounded.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for name and returns its unlock function.
func (p *partitionLocks) lock(name string) func() {
	p.mu.Lock()
	m, ok := p.locks[name]
	if !ok {
		m = &sync.Mutex{}
		p.locks[name] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
