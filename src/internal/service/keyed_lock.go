package service

import (
	"context"
	"net/netip"
	"sync"
)

type keyLock struct {
	sem  chan struct{}
	refs int // holders and waiters
}

// KeyedLock is a set of mutexes keyed by address. A key's mutex exists
// while someone holds or waits for it and is dropped afterwards.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[netip.Addr]*keyLock
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[netip.Addr]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned unlock func
// must be called exactly once; extra calls are ignored.
func (k *KeyedLock) Lock(ctx context.Context, key netip.Addr) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedLock) release(key netip.Addr, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or waited for.
func (k *KeyedLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
