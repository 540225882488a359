package wire

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// maxWriteBatch bounds how many pending byte vectors a single drain pass will
// flush before checking for newly arrived work, per spec's suggested batch
// size of 64.
const maxWriteBatch = 64

// ErrWriterClosed is returned by Write once the writer has recorded a prior
// write failure; the underlying connection is considered dead and further
// writes are refused immediately instead of queueing behind it.
var ErrWriterClosed = errors.New("wire: queued writer closed")

// QueuedWriter serializes byte vectors from many concurrent producers onto a
// single io.Writer, guaranteeing each Write call's bytes are emitted
// contiguously and in acceptance order, with at most one goroutine ever
// blocked on the underlying endpoint. It batches pending vectors into a
// single net.Buffers vectored write (writev) to amortize syscalls under
// contention.
//
// The first producer to move the pending count from 0 to 1 becomes the
// drain loop for as long as more work keeps arriving; every later producer
// just enqueues and returns. This mirrors an MPSC queue with single-consumer
// draining, expressed here with a mutex-guarded slice rather than a lock-free
// structure — the externally observable ordering and non-interleaving
// contract is identical either way.
type QueuedWriter struct {
	w io.Writer

	mu    sync.Mutex
	items [][]byte

	count  atomic.Int64
	closed atomic.Bool

	// onError, if set, is invoked once with the first write failure observed.
	// Callers typically wire this to their trace hooks; the writer itself
	// never retries. The producers whose bytes were in or behind the failed
	// batch get no error from Write and detect the failure through their own
	// timeouts; later producers get ErrWriterClosed instead of the original
	// error.
	onError func(error)
}

// NewQueuedWriter returns a QueuedWriter draining onto w. onError, if
// non-nil, is called exactly once with the error from the first failed
// underlying write.
func NewQueuedWriter(w io.Writer, onError func(error)) *QueuedWriter {
	return &QueuedWriter{w: w, onError: onError}
}

// Write enqueues p for transmission and, if the caller is the one that takes
// the pending count from 0 to 1, drains the queue inline. p is not copied;
// callers must not mutate it after passing it to Write.
func (q *QueuedWriter) Write(p []byte) error {
	if q.closed.Load() {
		return ErrWriterClosed
	}

	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()

	if q.count.Add(1) == 1 {
		q.drain()
	}
	return nil
}

// drain runs the single-consumer write loop. It is only ever entered by the
// producer that observed the 0->1 transition; every other producer that
// arrives while a drain is in progress just increments count and returns,
// trusting the active drain loop to see their contribution before it
// releases ownership.
func (q *QueuedWriter) drain() {
	for {
		batch := q.takeBatch()

		if len(batch) > 0 {
			if err := q.writeBatch(batch); err != nil {
				q.fail(len(batch), err)
				return
			}
		}

		if q.count.Add(-int64(len(batch))) == 0 {
			return
		}
		// count is still positive: either more arrived while we wrote, or
		// takeBatch capped this round below what was pending. Loop and drain
		// the remainder; ownership never passes to another goroutine.
	}
}

func (q *QueuedWriter) takeBatch() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n > maxWriteBatch {
		n = maxWriteBatch
	}
	batch := q.items[:n]
	q.items = q.items[n:]
	return batch
}

// writeBatch issues one vectored write across batch, relying on net.Buffers
// to advance past any short underlying write and to use writev when the
// destination supports it (e.g. *net.TCPConn, *net.UnixConn).
func (q *QueuedWriter) writeBatch(batch [][]byte) error {
	buffers := net.Buffers(batch)
	_, err := buffers.WriteTo(q.w)
	return err
}

// fail marks the writer dead, drops whatever is still queued (batchLen bytes
// already subtracted from count by the caller's accounting), and reports the
// first error once.
func (q *QueuedWriter) fail(batchLen int, err error) {
	q.closed.Store(true)

	q.mu.Lock()
	dropped := len(q.items)
	q.items = nil
	q.mu.Unlock()

	q.count.Add(-int64(batchLen + dropped))

	if q.onError != nil {
		q.onError(errors.Wrap(err, "wire: queued writer write failed"))
	}
}
