// Package lock serializes work on a key, either inside one process or across
// replicas through Redis.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// Locker acquires the lock for key, blocking until it is free or ctx is done.
// The returned func releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AnalysisKey is the lock key for one class week.
func AnalysisKey(classID int64, week int) string {
	return fmt.Sprintf("analysis:%d:%d", classID, week)
}

// Keyed is an in-process Locker. Entries are dropped once nobody holds or
// waits on them.
type Keyed struct {
	mu sync.Mutex
	m  map[string]*entry
}

type entry struct {
	ch   chan struct{} // capacity 1; a token in the channel means held
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{m: map[string]*entry{}}
}

func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.m, key)
	}
}

// held reports how many keys have holders or waiters.
func (k *Keyed) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
