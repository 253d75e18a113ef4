package engine

import (
	"sync"

	"github.com/google/uuid"
)

// LockRegistry serializes all mutations touching one participant. The store
// is additionally single-writer, but the lock keeps read-modify-write
// sequences (validate → execute, mark-to-market vs. decision) coherent.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the participant's lock, creating it on first use.
func (r *LockRegistry) Lock(participantID uuid.UUID) {
	r.participantLock(participantID).Lock()
}

// Unlock releases the participant's lock.
func (r *LockRegistry) Unlock(participantID uuid.UUID) {
	r.participantLock(participantID).Unlock()
}

func (r *LockRegistry) participantLock(participantID uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[participantID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[participantID] = l
	}
	return l
}
