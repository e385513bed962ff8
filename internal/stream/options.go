package stream

import (
	"bytes"
	"io"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const (
	// DefaultBufferSize is how many frames one partition of
	// DemuxMultiplexedSeparate may run ahead of the other.
	DefaultBufferSize = 16

	// DefaultCapacity is the size of each queue created by Fan and Pack.
	DefaultCapacity = 16
)

// Option configures the demux, Fan and Pack operations.
type Option func(*options)

type options struct {
	bufferSize int
	capacity   int
	encoding   encoding.Encoding
	logger     hclog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		bufferSize: DefaultBufferSize,
		capacity:   DefaultCapacity,
		logger:     hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBufferSize bounds how many frames the faster partition of
// DemuxMultiplexedSeparate may advance ahead of the slower one. Zero runs
// both partitions in lockstep. Negative values are ignored.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}

// WithCapacity sets the number of chunks each Fan or Pack queue holds
// before its producer blocks. Negative values are ignored.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.capacity = n
		}
	}
}

// WithEncoding decodes payloads from enc to UTF-8 before they reach a sink.
// Without it payload bytes are passed through unchanged.
func WithEncoding(enc encoding.Encoding) Option {
	return func(o *options) {
		o.encoding = enc
	}
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger hclog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// textWriter decodes bytes written to it into w. Close flushes any partial
// character held back by the decoder.
func (o options) textWriter(w io.Writer) io.WriteCloser {
	if o.encoding == nil {
		return nopWriteCloser{w}
	}
	return transform.NewWriter(w, o.encoding.NewDecoder())
}

// textDecoder turns the payloads of one stream into text, carrying partial
// characters over from one payload to the next.
type textDecoder struct {
	buf bytes.Buffer
	w   io.WriteCloser
}

func (o options) textDecoder() *textDecoder {
	d := &textDecoder{}
	d.w = o.textWriter(&d.buf)
	return d
}

func (d *textDecoder) decode(payload []byte) (string, error) {
	if _, err := d.w.Write(payload); err != nil {
		return "", err
	}
	text := d.buf.String()
	d.buf.Reset()
	return text, nil
}

func (d *textDecoder) flush() (string, error) {
	if err := d.w.Close(); err != nil {
		return "", err
	}
	text := d.buf.String()
	d.buf.Reset()
	return text, nil
}
