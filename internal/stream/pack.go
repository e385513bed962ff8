package stream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// PackSources are the constituents of a packed channel. Any of them may be
// nil. The output of each is framed with its own stream type; input written
// to the packed channel goes, unframed, to Stdin.
type PackSources struct {
	Stdin  Channel
	Stdout Channel
	Stderr Channel
}

// Packed is a multiplexed channel assembled from up to three raw channels.
// Its output is the frame-encoded interleaving of the constituents' outputs:
// each stream keeps its own order, nothing is promised across streams.
//
// The output ends once every constituent's output has ended and, when a
// Stdin constituent is present, once the input has been closed with
// CloseWrite and delivered.
type Packed struct {
	src    PackSources
	o      options
	logger hclog.Logger

	in  *queue
	out *queue

	guard     *semaphore.Weighted
	ctx       context.Context
	cancel    context.CancelFunc
	stop      func() bool
	tornDown  atomic.Bool
	closeOnce sync.Once

	done chan struct{}
	err  error
}

// Pack combines independent stdin, stdout and stderr channels into one
// multiplexed channel. The pump that reads the constituents starts on the
// first Read, Write or CloseWrite of the packed channel and runs once.
func Pack(ctx context.Context, src PackSources, opts ...Option) *Packed {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(ctx)

	p := &Packed{
		src:    src,
		o:      o,
		logger: o.logger.Named("pack").With("pump", xid.New().String()),
		in:     newQueue(o.capacity),
		out:    newQueue(o.capacity),
		guard:  semaphore.NewWeighted(1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.stop = context.AfterFunc(ctx, p.teardown)

	return p
}

// Read returns the next bytes of the frame-encoded output.
func (p *Packed) Read(b []byte) (int, error) {
	p.start()
	return p.out.Read(b)
}

// Write delivers input to the Stdin constituent, or discards it when there
// is none.
func (p *Packed) Write(b []byte) (int, error) {
	p.start()
	if p.src.Stdin == nil {
		return len(b), nil
	}

	n, err := p.in.Write(b)
	if err != nil {
		return n, p.in.writeErr(err)
	}
	return n, nil
}

// CloseWrite ends the input.
func (p *Packed) CloseWrite() error {
	p.start()
	p.in.end(nil)
	return nil
}

// Close tears the pump down, closes the constituents and completes the
// output.
func (p *Packed) Close() error {
	p.teardown()
	return nil
}

func (p *Packed) ContentType() ContentType { return Multiplexed }

// Wait blocks until the pump has finished and returns its error. A pump
// stopped by Close or context cancellation reports no error.
func (p *Packed) Wait() error {
	p.start()
	<-p.done
	return p.err
}

func (p *Packed) start() {
	if !p.guard.TryAcquire(1) {
		return
	}
	go p.pump()
}

func (p *Packed) pump() {
	defer close(p.done)
	defer p.cancel()
	defer p.stop()

	p.logger.Debug("pump started")

	g, gctx := errgroup.WithContext(p.ctx)
	for _, c := range []struct {
		t  StreamType
		ch Channel
	}{{Stdin, p.src.Stdin}, {Stdout, p.src.Stdout}, {Stderr, p.src.Stderr}} {
		if c.ch == nil {
			continue
		}
		g.Go(func() error {
			return p.abortOnError(p.emit(gctx, c.t, c.ch))
		})
	}
	if p.src.Stdin != nil {
		g.Go(func() error {
			return p.abortOnError(p.forward(p.src.Stdin))
		})
	}

	err := g.Wait()
	if p.tornDown.Load() || p.ctx.Err() != nil {
		err = nil
	}

	if err != nil {
		p.logger.Debug("pump failed", "error", err)
	} else {
		p.logger.Debug("pump finished")
	}

	p.err = err
	p.out.end(err)
	p.in.shutdown(err)
}

// emit frames everything ch produces onto the output queue.
func (p *Packed) emit(ctx context.Context, t StreamType, ch Channel) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			if perr := p.out.put(EncodeFrame(t, buf[:n])); perr != nil {
				// the consumer is gone
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &SourceError{Stream: t, Err: err}
		}
	}
}

// forward writes the packed channel's input to the stdin constituent and
// half-closes it when the input ends.
func (p *Packed) forward(stdin Channel) error {
	w := sinkWriter{w: stdin, t: Stdin}
	for {
		b, err := p.in.next()
		if err == io.EOF {
			if err := stdin.CloseWrite(); err != nil {
				return &SinkError{Stream: Stdin, Err: err}
			}
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := w.Write(b); err != nil {
			return err
		}
	}
}

func (p *Packed) abortOnError(err error) error {
	if err != nil {
		p.in.shutdown(err)
		p.closeSources()
	}
	return err
}

// closeSources unblocks constituents the pump may be reading from.
func (p *Packed) closeSources() {
	p.closeOnce.Do(func() {
		var result error
		for _, ch := range []Channel{p.src.Stdin, p.src.Stdout, p.src.Stderr} {
			if ch == nil {
				continue
			}
			if err := ch.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if result != nil {
			p.logger.Debug("closing constituents failed", "error", result)
		}
	})
}

func (p *Packed) teardown() {
	p.tornDown.Store(true)
	p.cancel()
	p.in.shutdown(nil)
	p.out.shutdown(nil)

	if p.guard.TryAcquire(1) {
		close(p.done)
		return
	}
	p.closeSources()
}
