package stream

import (
	"fmt"
	"io"
)

// Media types the engine sets on hijacked attach and exec responses.
const (
	MediaTypeRawStream         = "application/vnd.docker.raw-stream"
	MediaTypeMultiplexedStream = "application/vnd.docker.multiplexed-stream"
)

// ContentType is the wire format of a connection. It is decided once, from
// the response headers, and never re-evaluated.
type ContentType int

const (
	Raw ContentType = iota + 1
	Multiplexed
)

func (c ContentType) String() string {
	switch c {
	case Raw:
		return "raw"
	case Multiplexed:
		return "multiplexed"
	default:
		return fmt.Sprintf("ContentType(%d)", int(c))
	}
}

// MediaType returns the Content-Type value that announces c.
func (c ContentType) MediaType() string {
	switch c {
	case Raw:
		return MediaTypeRawStream
	case Multiplexed:
		return MediaTypeMultiplexedStream
	default:
		return ""
	}
}

// ParseContentType maps a Content-Type header value to a ContentType. The
// value must match one of the two media types exactly; anything else,
// including the empty string, is a *ClassificationError.
func ParseContentType(mediaType string) (ContentType, error) {
	switch mediaType {
	case MediaTypeRawStream:
		return Raw, nil
	case MediaTypeMultiplexedStream:
		return Multiplexed, nil
	default:
		return 0, &ClassificationError{MediaType: mediaType}
	}
}

// ContentTypeFor returns the format the engine uses for a process: raw when
// it runs with a TTY, multiplexed otherwise.
func ContentTypeFor(tty bool) ContentType {
	if tty {
		return Raw
	}
	return Multiplexed
}

// Transport is a live duplex byte connection owned by the networking layer.
// Implementations may also provide CloseWrite() error to half-close.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

type closeWriter interface {
	CloseWrite() error
}

// Channel is a bidirectional pipe. Write feeds its input, CloseWrite signals
// the end of input, and Read drains its output until io.EOF or a failure.
type Channel interface {
	io.ReadWriteCloser
	CloseWrite() error
	ContentType() ContentType
}

// Socket is a Transport whose wire format has been classified. It is either
// a *RawSocket or a *MultiplexedSocket.
type Socket interface {
	Channel
	Transport() Transport
	socket()
}

type conn struct {
	transport Transport
}

func (c conn) Read(p []byte) (int, error)  { return c.transport.Read(p) }
func (c conn) Write(p []byte) (int, error) { return c.transport.Write(p) }
func (c conn) Close() error                { return c.transport.Close() }
func (c conn) Transport() Transport        { return c.transport }

// CloseWrite half-closes the transport when it supports it and is a no-op
// otherwise.
func (c conn) CloseWrite() error {
	if cw, ok := c.transport.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// RawSocket is a connection carrying unframed bytes.
type RawSocket struct {
	conn
}

// NewRawSocket views t as a raw stream.
func NewRawSocket(t Transport) *RawSocket {
	return &RawSocket{conn{transport: t}}
}

func (*RawSocket) ContentType() ContentType { return Raw }
func (*RawSocket) socket()                  {}

// MultiplexedSocket is a connection carrying frames.
type MultiplexedSocket struct {
	conn
}

// NewMultiplexedSocket views t as a multiplexed stream.
func NewMultiplexedSocket(t Transport) *MultiplexedSocket {
	return &MultiplexedSocket{conn{transport: t}}
}

func (*MultiplexedSocket) ContentType() ContentType { return Multiplexed }
func (*MultiplexedSocket) socket()                  {}

// NewSocket wraps t according to ct.
func NewSocket(t Transport, ct ContentType) (Socket, error) {
	switch ct {
	case Raw:
		return NewRawSocket(t), nil
	case Multiplexed:
		return NewMultiplexedSocket(t), nil
	default:
		return nil, fmt.Errorf("cannot wrap transport as %s", ct)
	}
}
