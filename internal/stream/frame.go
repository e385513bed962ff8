package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// StreamType identifies the logical stream a frame belongs to.
type StreamType uint8

const (
	Stdin  StreamType = 0
	Stdout StreamType = 1
	Stderr StreamType = 2

	// Systemerr frames carry an error message from the engine itself and
	// end the stream.
	Systemerr StreamType = 3
)

func (t StreamType) String() string {
	switch t {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Systemerr:
		return "systemerr"
	default:
		return fmt.Sprintf("stream(%d)", uint8(t))
	}
}

// HeaderSize is the length of a frame header: one type byte, three reserved
// zero bytes and a big-endian uint32 payload length.
const HeaderSize = 8

// MaxPayloadSize is the largest payload a single frame can describe.
const MaxPayloadSize = math.MaxUint32

var maxChunk uint64 = MaxPayloadSize

// Frame is one header+payload unit of a multiplexed stream.
type Frame struct {
	Type    StreamType
	Payload []byte
}

// EncodeFrame returns the wire encoding of a frame, exactly
// HeaderSize+len(payload) bytes long. It panics if payload is longer than
// MaxPayloadSize.
func EncodeFrame(t StreamType, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), t, payload)
}

// AppendFrame appends the wire encoding of a frame to dst.
func AppendFrame(dst []byte, t StreamType, payload []byte) []byte {
	if uint64(len(payload)) > MaxPayloadSize {
		panic(fmt.Sprintf("stream: frame payload of %d bytes exceeds %d", len(payload), uint64(MaxPayloadSize)))
	}

	var header [HeaderSize]byte
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))

	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// FrameWriter wraps every Write into frames of a single stream type.
type FrameWriter struct {
	w io.Writer
	t StreamType
}

// NewFrameWriter returns a writer that encodes everything written to it as
// frames of type t on w.
func NewFrameWriter(w io.Writer, t StreamType) *FrameWriter {
	return &FrameWriter{w: w, t: t}
}

// Write emits p as one frame, or several when p exceeds MaxPayloadSize.
// Empty writes emit nothing.
func (fw *FrameWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := p
		if uint64(len(chunk)) > maxChunk {
			chunk = chunk[:maxChunk]
		}

		n, err := fw.w.Write(EncodeFrame(fw.t, chunk))
		n -= HeaderSize
		if n < 0 {
			n = 0
		}
		written += n
		if err != nil {
			return written, err
		}
		if n < len(chunk) {
			return written, io.ErrShortWrite
		}

		p = p[len(chunk):]
	}

	return written, nil
}
