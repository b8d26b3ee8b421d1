package coordinator

import (
	"context"
	"sync"
)

// keyedMutex serialises work per review id. Locks for idle ids are dropped.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*idLock
}

type idLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*idLock)}
}

// lock blocks until id is free or ctx is done. The returned func releases it.
func (k *keyedMutex) lock(ctx context.Context, id uint) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &idLock{sem: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			k.release(id, l)
		}, nil
	case <-ctx.Done():
		k.release(id, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(id uint, l *idLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// held reports how many callers hold or wait for id.
func (k *keyedMutex) held(id uint) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.locks[id]; ok {
		return l.refs
	}
	return 0
}
