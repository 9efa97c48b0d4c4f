package transport

import (
	"sync"

	"node-rpc/message"

	"github.com/pkg/errors"
)

const numPriorities = int(message.High) + 1

// sendQueue is a strict-priority frame queue: a High frame is always written before
// any queued Medium or Low frame. Frames of one priority keep their order.
//
// Ordered frames share one FIFO lane whatever their priority. Only the head of that
// lane competes with the priority levels, so ordered frames leave in push order.
type sendQueue struct {
	mu      sync.Mutex
	levels  [numPriorities][][]byte
	ordered []orderedFrame
	limit   int // per level, and for the ordered lane
	ready   chan struct{}
	closed  bool
}

type orderedFrame struct {
	prio  message.Priority
	frame []byte
}

func newSendQueue(limit int) *sendQueue {
	return &sendQueue{limit: limit, ready: make(chan struct{}, 1)}
}

func (q *sendQueue) push(p message.Priority, frame []byte) error {
	return q.enqueue(p, frame, false, false)
}

// pushOrdered queues a frame that must not overtake earlier ordered frames.
func (q *sendQueue) pushOrdered(p message.Priority, frame []byte) error {
	return q.enqueue(p, frame, true, false)
}

// pushForce ignores the level limit. Used for the final Goodbye frame.
func (q *sendQueue) pushForce(p message.Priority, frame []byte) error {
	return q.enqueue(p, frame, false, true)
}

func (q *sendQueue) enqueue(p message.Priority, frame []byte, ordered, force bool) error {
	if int(p) >= numPriorities {
		p = message.High
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.WithStack(ErrClosed)
	}
	switch {
	case ordered:
		if !force && len(q.ordered) >= q.limit {
			q.mu.Unlock()
			return errors.Wrapf(ErrQueueFull, "ordered lane, %d frames", q.limit)
		}
		q.ordered = append(q.ordered, orderedFrame{prio: p, frame: frame})
	default:
		if !force && len(q.levels[p]) >= q.limit {
			q.mu.Unlock()
			return errors.Wrapf(ErrQueueFull, "%s priority, %d frames", p, q.limit)
		}
		q.levels[p] = append(q.levels[p], frame)
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// next takes the frame to write, if any. The ordered head wins ties with its level.
func (q *sendQueue) next() ([]byte, bool) {
	for p := numPriorities - 1; p >= 0; p-- {
		if len(q.ordered) > 0 && int(q.ordered[0].prio) == p {
			frame := q.ordered[0].frame
			q.ordered[0] = orderedFrame{}
			q.ordered = q.ordered[1:]
			return frame, true
		}
		if lvl := q.levels[p]; len(lvl) > 0 {
			frame := lvl[0]
			lvl[0] = nil
			q.levels[p] = lvl[1:]
			return frame, true
		}
	}
	return nil, false
}

// pop blocks until a frame is available, the queue is closed and empty, or done closes.
func (q *sendQueue) pop(done <-chan struct{}) ([]byte, bool) {
	for {
		q.mu.Lock()
		if frame, ok := q.next(); ok {
			q.mu.Unlock()
			return frame, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.ready:
		case <-done:
			return nil, false
		}
	}
}

// close rejects further pushes. Queued frames can still be popped.
func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ordered)
	for _, lvl := range q.levels {
		n += len(lvl)
	}
	return n
}
