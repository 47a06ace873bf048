package locking

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrLockTaken is returned when a lock is already held and tryOnlyOnce is set
var ErrLockTaken = errors.New("lock is already taken")

// LockerMemory is a type of LockerInterface
type LockerMemory struct {
	pool  sync.Pool
	locks sync.Map
}

// NewLockerMemory builds a new LockerMemory instance
func NewLockerMemory() *LockerMemory {
	locker := LockerMemory{}
	locker.pool = sync.Pool{
		New: func() interface{} {
			return new(sync.Mutex)
		},
	}

	return &locker
}

// Acquire acquires a LockInterface
func (l *LockerMemory) Acquire(_ context.Context, key string, _ time.Duration, tryOnlyOnce bool) (LockInterface, error) {
	lock := l.getLock(key)

	if tryOnlyOnce {
		if !lock.TryLock() {
			return nil, ErrLockTaken
		}
	} else {
		lock.Lock()
	}

	return &LockMemory{
		key: key,
		release: func() {
			lock.Unlock()
		},
	}, nil
}

func (l *LockerMemory) getLock(key interface{}) *sync.Mutex {
	newLock := l.pool.Get()
	lock, stored := l.locks.LoadOrStore(key, newLock)
	if stored {
		l.pool.Put(newLock)
	}
	return lock.(*sync.Mutex)
}

// LockMemory is a memory implementation of a LockInterface
type LockMemory struct {
	key     string
	release func()
}

// Key returns a key
func (l *LockMemory) Key() string {
	return l.key
}

// Release releases a LockMemory
func (l *LockMemory) Release(_ context.Context) error {
	l.release()
	return nil
}
