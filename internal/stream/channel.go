package stream

import (
	"errors"
	"io"

	"github.com/hashicorp/go-multierror"
)

type rawChannel struct {
	output io.Reader
	input  io.Writer
}

// NewRawChannel builds a raw Channel from a reader producing its output and
// a writer consuming its input. A nil output is empty and a nil input
// discards. CloseWrite closes input when it is an io.Closer; Close closes
// both ends.
func NewRawChannel(output io.Reader, input io.Writer) Channel {
	return &rawChannel{output: output, input: input}
}

func (c *rawChannel) Read(p []byte) (int, error) {
	if c.output == nil {
		return 0, io.EOF
	}
	return c.output.Read(p)
}

func (c *rawChannel) Write(p []byte) (int, error) {
	if c.input == nil {
		return len(p), nil
	}
	return c.input.Write(p)
}

func (c *rawChannel) CloseWrite() error {
	if closer, ok := c.input.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *rawChannel) Close() error {
	var result error
	if closer, ok := c.output.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := c.CloseWrite(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		result = multierror.Append(result, err)
	}
	return result
}

func (c *rawChannel) ContentType() ContentType { return Raw }

// transportReader tags read failures of a channel as transport errors.
type transportReader struct {
	ch Channel
}

func (r transportReader) Read(p []byte) (int, error) {
	n, err := r.ch.Read(p)
	if err != nil && err != io.EOF {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Op: "read", Err: err}
		}
	}
	return n, err
}

// transportWriter tags write failures of a channel as transport errors.
type transportWriter struct {
	ch Channel
}

func (w transportWriter) Write(p []byte) (int, error) {
	n, err := w.ch.Write(p)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Op: "write", Err: err}
		}
	}
	return n, err
}

type sourceReader struct {
	r io.Reader
	t StreamType
}

func (s sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = &SourceError{Stream: s.t, Err: err}
	}
	return n, err
}

type sinkWriter struct {
	w io.Writer
	t StreamType
}

func (s sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		err = &SinkError{Stream: s.t, Err: err}
	}
	return n, err
}
