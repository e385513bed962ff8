package stream

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"
)

// Fanned is a multiplexed channel split into three raw channels. Stdin
// accepts input, Stdout and Stderr produce output. The channels share one
// pump that starts the first time any of them is read from or written to,
// and runs at most once.
//
// Closing a single channel only stops its own queue; the pump keeps serving
// the others until the underlying channel ends. Close, or cancelling the
// context given to Fan, tears everything down and completes all three.
type Fanned struct {
	Stdin  Channel
	Stdout Channel
	Stderr Channel

	ch     Channel
	o      options
	logger hclog.Logger

	stdin  *queue
	stdout *queue
	stderr *queue

	guard    *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	stop     func() bool
	tornDown atomic.Bool

	done chan struct{}
	err  error
}

// Fan splits a multiplexed channel into independent stdin, stdout and stderr
// channels. Each queue holds up to the capacity set by WithCapacity chunks.
// A failure of ch, including a malformed frame, is reported by all three.
func Fan(ctx context.Context, ch Channel, opts ...Option) (*Fanned, error) {
	if ch.ContentType() != Multiplexed {
		return nil, fmt.Errorf("cannot fan out a %s channel: only multiplexed channels carry separate streams", ch.ContentType())
	}

	o := newOptions(opts)
	ctx, cancel := context.WithCancel(ctx)

	f := &Fanned{
		ch:     ch,
		o:      o,
		logger: o.logger.Named("fan").With("pump", xid.New().String()),
		stdin:  newQueue(o.capacity),
		stdout: newQueue(o.capacity),
		stderr: newQueue(o.capacity),
		guard:  semaphore.NewWeighted(1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	f.Stdin = &fanLeg{f: f, t: Stdin, q: f.stdin}
	f.Stdout = &fanLeg{f: f, t: Stdout, q: f.stdout}
	f.Stderr = &fanLeg{f: f, t: Stderr, q: f.stderr}
	f.stop = context.AfterFunc(ctx, f.teardown)

	return f, nil
}

// Close tears the pump down and completes all three channels.
func (f *Fanned) Close() error {
	f.teardown()
	return nil
}

// Wait blocks until the pump has finished and returns its error. A pump
// stopped by Close or context cancellation reports no error.
func (f *Fanned) Wait() error {
	f.start()
	<-f.done
	return f.err
}

func (f *Fanned) start() {
	if !f.guard.TryAcquire(1) {
		return
	}
	go f.pump()
}

func (f *Fanned) pump() {
	defer close(f.done)
	defer f.cancel()
	defer f.stop()

	f.logger.Debug("pump started")
	result, err := DemuxMultiplexedSeparate(f.ctx, f.ch, f.stdin,
		discardOnShutdown{f.stdout}, discardOnShutdown{f.stderr},
		WithBufferSize(f.o.capacity),
		WithEncoding(f.o.encoding),
	)
	if f.tornDown.Load() || f.ctx.Err() != nil {
		err = nil
	}

	switch {
	case err != nil:
		f.logger.Debug("pump failed", "error", err)
	case result.Stdout != nil:
		f.logger.Debug("pump finished", "stdout_frames", result.Stdout.Frames, "stderr_frames", result.Stderr.Frames)
	default:
		f.logger.Debug("pump stopped")
	}

	f.err = err
	f.stdout.end(err)
	f.stderr.end(err)
	f.stdin.shutdown(err)
}

func (f *Fanned) teardown() {
	f.tornDown.Store(true)
	f.cancel()
	f.stdin.shutdown(nil)
	f.stdout.shutdown(nil)
	f.stderr.shutdown(nil)

	// Claiming the guard here means the pump never ran and never will.
	if f.guard.TryAcquire(1) {
		close(f.done)
	}
}

type fanLeg struct {
	f *Fanned
	t StreamType
	q *queue
}

// Read drains the leg's queue. The stdin leg has no output; its Read blocks
// until the pump finishes and then reports the pump's outcome.
func (l *fanLeg) Read(p []byte) (int, error) {
	l.f.start()

	if l.t == Stdin {
		<-l.f.done
		if l.f.err != nil {
			return 0, l.f.err
		}
		return 0, io.EOF
	}

	return l.q.Read(p)
}

func (l *fanLeg) Write(p []byte) (int, error) {
	l.f.start()

	if l.t != Stdin {
		return 0, ErrReadOnly
	}

	n, err := l.q.Write(p)
	if err != nil {
		return n, l.q.writeErr(err)
	}
	return n, nil
}

func (l *fanLeg) CloseWrite() error {
	if l.t == Stdin {
		l.f.start()
		l.q.end(nil)
	}
	return nil
}

func (l *fanLeg) Close() error {
	if l.t == Stdin {
		l.q.end(nil)
		return nil
	}
	l.q.shutdown(nil)
	return nil
}

func (l *fanLeg) ContentType() ContentType { return Raw }
