package display

import (
	"context"
	"sync"
)

// Requests is a single-slot mailbox of desired door states.
// A value posted while another one is still pending replaces it,
// so the consumer only ever sees the newest one.
// The zero value is ready to use.
type Requests struct {
	ch   chan bool
	once sync.Once
}

// NewRequests creates the mailbox.
func NewRequests() *Requests {
	return &Requests{}
}

func (r *Requests) slot() chan bool {
	r.once.Do(func() { r.ch = make(chan bool, 1) })
	return r.ch
}

// Post stores the desired door state and wakes the consumer.
func (r *Requests) Post(open bool) {
	ch := r.slot()
	for {
		select {
		case ch <- open:
			return
		default:
		}
		// drop the stale pending value.
		select {
		case <-ch:
		default:
		}
	}
}

// Wait returns the pending value, blocking until one is posted.
func (r *Requests) Wait(ctx context.Context) (bool, error) {
	select {
	case v := <-r.slot():
		return v, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Clear drops any pending value.
func (r *Requests) Clear() {
	select {
	case <-r.slot():
	default:
	}
}

// Pending reports whether a value is waiting.
func (r *Requests) Pending() bool {
	return len(r.slot()) > 0
}
