package ledger

import (
	"sync"

	"github.com/mmynk/microsplit/internal/models"
)

// keyedMutex hands out one mutex per split address. Entries are reference
// counted and dropped when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[models.Address]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[models.Address]*refMutex)}
}

// Lock blocks until addr is free and returns its unlock func.
func (k *keyedMutex) Lock(addr models.Address) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[addr]
	if !ok {
		m = &refMutex{}
		k.locks[addr] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, addr)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
