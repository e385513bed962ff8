package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errQueueShutdown = errors.New("queue shut down")

// queue is a bounded chunk queue between one producer and one consumer.
//
// The producer finishes with end; the consumer then drains what is left and
// receives the end error, or io.EOF. The consumer (or whoever tears the
// pipeline down) stops the queue with shutdown; pending and later writes
// fail immediately and reads return the shutdown error, or io.EOF.
type queue struct {
	items chan []byte
	ended chan struct{}
	shut  chan struct{}

	endOnce  sync.Once
	shutOnce sync.Once
	endErr   error
	shutErr  error

	pending []byte
}

func newQueue(capacity int) *queue {
	return &queue{
		items: make(chan []byte, capacity),
		ended: make(chan struct{}),
		shut:  make(chan struct{}),
	}
}

// put enqueues b without copying it. It blocks while the queue is full.
func (q *queue) put(b []byte) error {
	select {
	case <-q.shut:
		return errQueueShutdown
	case <-q.ended:
		return io.ErrClosedPipe
	default:
	}

	select {
	case q.items <- b:
		return nil
	case <-q.shut:
		return errQueueShutdown
	case <-q.ended:
		return io.ErrClosedPipe
	}
}

// Write enqueues a copy of p.
func (q *queue) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := q.put(bytes.Clone(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (q *queue) next() ([]byte, error) {
	select {
	case <-q.shut:
		return nil, q.shutdownErr()
	default:
	}

	select {
	case b := <-q.items:
		return b, nil
	case <-q.shut:
		return nil, q.shutdownErr()
	case <-q.ended:
		select {
		case b := <-q.items:
			return b, nil
		default:
		}
		if q.endErr != nil {
			return nil, q.endErr
		}
		return nil, io.EOF
	}
}

// Read drains the queue. It is not safe for concurrent use.
func (q *queue) Read(p []byte) (int, error) {
	if len(q.pending) == 0 {
		b, err := q.next()
		if err != nil {
			return 0, err
		}
		q.pending = b
	}

	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *queue) end(err error) {
	q.endOnce.Do(func() {
		q.endErr = err
		close(q.ended)
	})
}

func (q *queue) shutdown(err error) {
	q.shutOnce.Do(func() {
		q.shutErr = err
		close(q.shut)
	})
}

func (q *queue) shutdownErr() error {
	if q.shutErr != nil {
		return q.shutErr
	}
	return io.EOF
}

// writeErr maps a failed put to what a producer should see.
func (q *queue) writeErr(err error) error {
	if errors.Is(err, errQueueShutdown) {
		if q.shutErr != nil {
			return q.shutErr
		}
		return io.ErrClosedPipe
	}
	return err
}

// discardOnShutdown is the producer side of a queue whose consumer may go
// away early: once the queue is shut down, writes succeed and are dropped.
type discardOnShutdown struct {
	q *queue
}

func (d discardOnShutdown) Write(p []byte) (int, error) {
	n, err := d.q.Write(p)
	if errors.Is(err, errQueueShutdown) {
		return len(p), nil
	}
	return n, err
}
