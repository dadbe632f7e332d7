package framework

import (
	"context"
	"sync"
)

// Event is a binary, level-triggered event.
// Once set, every Wait returns immediately until Clear is called,
// so a waiter which wants to consume a transition must Clear it.
type Event struct {
	lock  sync.Mutex
	set   bool
	ready chan struct{}
}

func (e *Event) readyCh() chan struct{} {
	if e.ready == nil {
		e.ready = make(chan struct{})
	}
	return e.ready
}

// Set sets the event and wakes up all waiters.
func (e *Event) Set() {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.set {
		e.set = true
		close(e.readyCh())
	}
}

// Clear resets the event.
func (e *Event) Clear() {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.set {
		e.set = false
		e.ready = make(chan struct{})
	}
}

// IsSet reports whether the event is set.
func (e *Event) IsSet() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.set
}

// Wait blocks until the event is set or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	e.lock.Lock()
	ch := e.readyCh()
	e.lock.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
