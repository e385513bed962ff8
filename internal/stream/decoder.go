package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

const readBufferSize = 32 * 1024

// Decoder reads frames from a multiplexed byte stream. It reads from the
// underlying reader only when the caller asks for the next frame.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []byte
	readErr error
	err     error
	acc     Accumulator
	offset  int64
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, readBufferSize),
	}
}

// Next returns the next frame. It returns io.EOF when the stream ends on a
// frame boundary and a *FrameParseError when it ends inside a frame. Errors
// are sticky: once Next fails it keeps returning the same error.
func (d *Decoder) Next() (Frame, error) {
	if d.err != nil {
		return Frame{}, d.err
	}

	for {
		if len(d.pending) > 0 {
			n, done := d.acc.Feed(d.pending)
			d.pending = d.pending[n:]
			d.offset += int64(n)
			if done {
				frame := d.acc.Frame()
				d.acc = Accumulator{}
				return d.check(frame)
			}
		}

		if d.readErr != nil {
			return Frame{}, d.fail(d.readErr)
		}

		n, err := d.r.Read(d.buf)
		d.pending = d.buf[:n]
		d.readErr = err
	}
}

// Frames returns a lazy sequence over the remaining frames. The sequence
// stops after the first error, which is yielded; a clean end of stream ends
// it without an error. Ranging over it again resumes where the previous
// range stopped.
func (d *Decoder) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			frame, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(frame, err) || err != nil {
				return
			}
		}
	}
}

// Frames decodes r lazily. See Decoder.Frames.
func Frames(r io.Reader) iter.Seq2[Frame, error] {
	return NewDecoder(r).Frames()
}

func (d *Decoder) check(frame Frame) (Frame, error) {
	switch frame.Type {
	case Stdin, Stdout, Stderr:
		return frame, nil
	case Systemerr:
		d.err = &RemoteError{Message: string(frame.Payload)}
	default:
		d.err = &FrameParseError{
			Offset: d.offset,
			Reason: fmt.Sprintf("unknown stream type %d", uint8(frame.Type)),
		}
	}
	return Frame{}, d.err
}

func (d *Decoder) fail(err error) error {
	switch {
	case !errors.Is(err, io.EOF):
		d.err = &TransportError{Op: "read", Err: err}
	case !d.acc.Started():
		d.err = io.EOF
	case d.acc.headerBytesRead < HeaderSize:
		d.err = &FrameParseError{
			Offset: d.offset,
			Reason: fmt.Sprintf("stream ended after %d of %d header bytes", d.acc.headerBytesRead, HeaderSize),
			Err:    io.ErrUnexpectedEOF,
		}
	default:
		d.err = &FrameParseError{
			Offset: d.offset,
			Reason: fmt.Sprintf("stream ended after %d of %d %s payload bytes", d.acc.messageBytesRead, d.acc.messageSize, d.acc.messageType),
			Err:    io.ErrUnexpectedEOF,
		}
	}
	return d.err
}
