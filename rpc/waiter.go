package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/damianoneill/rpcnet/wire"
)

// waiter is a caller-side rendezvous point for one in-flight request. It is
// created on the stack of the goroutine making the call, registered in a
// waiterTable keyed by request id before the request bytes are enqueued,
// and deregistered on completion by whichever of the caller (timeout,
// cancel) or the reader (delivery) finishes with it first.
type waiter struct {
	id    uint64
	done  chan struct{}
	frame wire.Frame
	err   error
}

func newWaiter(id uint64) *waiter {
	return &waiter{id: id, done: make(chan struct{})}
}

// deliver hands the waiter its response frame and wakes the parked caller.
// It must only be called by whichever goroutine removed the waiter from its
// table — remove-then-deliver is what makes this exclusive.
func (w *waiter) deliver(f wire.Frame) {
	w.frame = f
	close(w.done)
}

// deliverErr wakes the parked caller with an error instead of a frame, used
// when the connection the waiter was registered against has died.
func (w *waiter) deliverErr(err error) {
	w.err = err
	close(w.done)
}

// park blocks until the waiter is delivered, ctx is done, or timeout
// elapses (timeout <= 0 disables the deadline). It never removes the
// waiter from its table itself; on a non-nil error the caller MUST call
// waiterTable.remove to clean up in case delivery races the timeout.
func (w *waiter) park(ctx context.Context, timeout time.Duration) (wire.Frame, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-w.done:
		return w.frame, w.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return wire.Frame{}, ErrTimeout
		}
		return wire.Frame{}, ctx.Err()
	}
}

// waiterTable maps a live request id to the waiter awaiting its response.
// All access is serialized by mu; the table grants exactly one consumer per
// insertion because remove is atomic within the critical section.
type waiterTable struct {
	mu sync.Mutex
	m  map[uint64]*waiter
}

func newWaiterTable() *waiterTable {
	return &waiterTable{m: make(map[uint64]*waiter)}
}

// insert registers w under w.id. Overwriting a live id is a programmer
// error — the id allocator guarantees uniqueness while a waiter is live —
// so insert panics rather than silently losing the prior waiter.
func (t *waiterTable) insert(w *waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.m[w.id]; exists {
		panic(fmt.Sprintf("rpc: waiter id %d already registered", w.id))
	}
	t.m[w.id] = w
}

// remove atomically takes the waiter for id out of the table, if present.
// Both the reader (about to deliver) and a timing-out caller (about to give
// up) call remove; exactly one of them observes the non-nil waiter.
func (t *waiterTable) remove(id uint64) *waiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.m[id]
	delete(t.m, id)
	return w
}

// closeAll removes every waiter still registered and wakes each with err.
// Called once the connection backing the table is known dead (reader loop
// exit), so no caller is left parked forever.
func (t *waiterTable) closeAll(err error) {
	t.mu.Lock()
	waiters := make([]*waiter, 0, len(t.m))
	for id, w := range t.m {
		waiters = append(waiters, w)
		delete(t.m, id)
	}
	t.mu.Unlock()

	for _, w := range waiters {
		w.deliverErr(err)
	}
}
