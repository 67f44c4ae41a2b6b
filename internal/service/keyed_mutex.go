package service

import (
	"context"
	"sync"
)

// keyedMutex serialises work per key while letting distinct keys proceed in
// parallel. Entries are reference counted and dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[uint]*keyedSlot
}

type keyedSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[uint]*keyedSlot)}
}

// Lock blocks until the key is free or ctx is done. The returned func
// releases the key and must be called exactly once.
func (k *keyedMutex) Lock(ctx context.Context, key uint) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &keyedSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			k.release(key, slot)
		}, nil
	case <-ctx.Done():
		k.release(key, slot)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key uint, slot *keyedSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
