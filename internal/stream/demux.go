package stream

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// FrameSink receives decoded payloads in wire order.
type FrameSink func(t StreamType, text string) error

// SinkResult summarises what one sink of DemuxMultiplexedSeparate received.
type SinkResult struct {
	Frames int
	Bytes  int64
}

// SplitResult holds the result of each sink of DemuxMultiplexedSeparate. A
// slot is nil when its sink was nil.
type SplitResult struct {
	Stdout *SinkResult
	Stderr *SinkResult
}

// Demux drains a socket into stdout and stderr according to its wire
// format. Raw sockets cannot tell the streams apart and write everything to
// stdout.
func Demux(ctx context.Context, s Socket, source io.Reader, stdout, stderr io.Writer, opts ...Option) error {
	switch s := s.(type) {
	case *RawSocket:
		return DemuxRaw(ctx, s, source, stdout, opts...)
	case *MultiplexedSocket:
		_, err := DemuxMultiplexedSeparate(ctx, s, source, stdout, stderr, opts...)
		return err
	default:
		return fmt.Errorf("cannot demux socket of type %T", s)
	}
}

// DemuxRaw copies source into the channel's input while draining its output
// into sink. Output arrives exactly as received; if the remote end wrote
// several streams into one raw connection they stay interleaved.
//
// A nil source is empty input and a nil sink discards. DemuxRaw returns
// once the channel's output ends. Cancelling ctx, or a failure of source or
// sink, closes ch to unblock the other direction.
func DemuxRaw(ctx context.Context, ch Channel, source io.Reader, sink io.Writer, opts ...Option) error {
	o := newOptions(opts)

	return pipe(ctx, ch, source, func(ctx context.Context) error {
		w := o.textWriter(sinkWriter{w: orDiscard(sink), t: Stdout})
		if _, err := io.Copy(w, transportReader{ch}); err != nil {
			return err
		}
		return w.Close()
	})
}

// DemuxMultiplexed decodes the channel's output as frames and passes each
// payload, as text, to sink in wire order. A nil sink parses and discards.
func DemuxMultiplexed(ctx context.Context, ch Channel, source io.Reader, sink FrameSink, opts ...Option) error {
	o := newOptions(opts)
	if sink == nil {
		sink = func(StreamType, string) error { return nil }
	}

	return pipe(ctx, ch, source, func(ctx context.Context) error {
		decoders := map[StreamType]*textDecoder{}
		order := []StreamType{}

		for frame, err := range Frames(transportReader{ch}) {
			if err != nil {
				return err
			}

			dec, ok := decoders[frame.Type]
			if !ok {
				dec = o.textDecoder()
				decoders[frame.Type] = dec
				order = append(order, frame.Type)
			}

			text, err := dec.decode(frame.Payload)
			if err != nil {
				return &SinkError{Stream: frame.Type, Err: err}
			}
			if err := sink(frame.Type, text); err != nil {
				return &SinkError{Stream: frame.Type, Err: err}
			}
		}

		for _, t := range order {
			text, err := decoders[t].flush()
			if err != nil {
				return &SinkError{Stream: t, Err: err}
			}
			if text == "" {
				continue
			}
			if err := sink(t, text); err != nil {
				return &SinkError{Stream: t, Err: err}
			}
		}
		return nil
	})
}

// DemuxMultiplexedSeparate decodes the channel's output as frames and
// routes stderr payloads to stderr and every other payload to stdout. The
// two partitions are written concurrently; one may run up to the configured
// buffer size (WithBufferSize) frames ahead of the other before it blocks.
//
// Any failure, whether a malformed frame, the transport, source or either
// sink, fails the whole operation and no result is returned.
func DemuxMultiplexedSeparate(ctx context.Context, ch Channel, source io.Reader, stdout, stderr io.Writer, opts ...Option) (SplitResult, error) {
	o := newOptions(opts)

	out := newPartition(Stdout, stdout, o)
	errs := newPartition(Stderr, stderr, o)

	err := pipe(ctx, ch, source, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)

		outFrames := make(chan []byte, o.bufferSize)
		errFrames := make(chan []byte, o.bufferSize)

		g.Go(func() error {
			defer close(outFrames)
			defer close(errFrames)

			for frame, err := range Frames(transportReader{ch}) {
				if err != nil {
					return err
				}

				dst := outFrames
				if frame.Type == Stderr {
					dst = errFrames
				}

				select {
				case dst <- frame.Payload:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})

		for _, p := range []struct {
			partition *partition
			frames    <-chan []byte
		}{{out, outFrames}, {errs, errFrames}} {
			g.Go(func() error {
				if err := p.partition.drain(gctx, p.frames); err != nil {
					// unblocks the router if it is waiting on the transport
					ch.Close()
					return err
				}
				return nil
			})
		}

		return g.Wait()
	})
	if err != nil {
		return SplitResult{}, err
	}

	return SplitResult{Stdout: out.result, Stderr: errs.result}, nil
}

type partition struct {
	t      StreamType
	sink   io.Writer
	o      options
	result *SinkResult
}

func newPartition(t StreamType, sink io.Writer, o options) *partition {
	p := &partition{t: t, sink: sink, o: o}
	if sink != nil {
		p.result = &SinkResult{}
	}
	return p
}

func (p *partition) drain(ctx context.Context, frames <-chan []byte) error {
	if p.sink == nil {
		for range frames {
		}
		return nil
	}

	w := p.o.textWriter(sinkWriter{w: p.sink, t: p.t})
	for payload := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		p.result.Frames++
		p.result.Bytes += int64(len(payload))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return w.Close()
}

// pipe runs the input direction (source into ch) alongside output, which
// drains ch. It returns when output returns. The input direction is
// abandoned at that point, as the remote end has finished the exchange; a
// source that blocks forever must be unblocked by its owner.
func pipe(ctx context.Context, ch Channel, source io.Reader, output func(context.Context) error) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { ch.Close() })
	defer stop()

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- copyInput(ch, source)
	}()

	outputDone := make(chan error, 1)
	go func() {
		outputDone <- output(ctx)
	}()

	var err error
	select {
	case err = <-outputDone:
		if err != nil {
			// unblocks the input direction if it is writing to the transport
			ch.Close()
		}
	case err = <-inputDone:
		if err != nil {
			cancel()
			<-outputDone
		} else {
			err = <-outputDone
		}
	}

	if err != nil && parent.Err() != nil {
		return parent.Err()
	}
	return err
}

func copyInput(ch Channel, source io.Reader) error {
	if source != nil {
		if _, err := io.Copy(transportWriter{ch}, sourceReader{r: source, t: Stdin}); err != nil {
			return err
		}
	}

	if err := ch.CloseWrite(); err != nil {
		return &TransportError{Op: "close write", Err: err}
	}
	return nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
