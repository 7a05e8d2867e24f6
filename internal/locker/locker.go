// Package locker provides the exclusive locks that serialize purchases and
// registrations.
package locker

import (
	"context"
)

// Locker grants exclusive access to one critical section at a time.
// Lock blocks until the lock is held or ctx is done. The returned unlock
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Mutex is a process-wide lock whose waiters can give up on cancellation
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

func (m *Mutex) Lock(ctx context.Context) (func(), error) {
	select {
	case m.ch <- struct{}{}:
		return func() { <-m.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
