// Package event provides typed emitters whose listeners are revoked through
// subscription tokens.
package event

import (
	"sort"
	"sync"
)

// Subscription is the token returned by Emitter.Subscribe. Cancel is safe to
// call more than once and on a nil token.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Emitter fans a value out to its listeners in subscription order.
type Emitter[T any] struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]func(T)
}

func (e *Emitter[T]) Subscribe(fn func(T)) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[uint64]func(T))
	}
	id := e.next
	e.next++
	e.listeners[id] = fn
	return &Subscription{cancel: func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}}
}

// Emit calls every listener registered at the time of the call. Listeners run
// without the emitter lock held, so they may subscribe or cancel.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of live listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
