package stream

import (
	"errors"
	"fmt"
)

// ErrReadOnly is returned when writing to a channel leg that only produces
// output, such as the stdout and stderr legs returned by Fan.
var ErrReadOnly = errors.New("channel does not accept input")

// TransportError reports a failure of the underlying connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClassificationError reports a response whose Content-Type does not name
// one of the two streaming media types. MediaType is empty when the header
// was absent.
type ClassificationError struct {
	MediaType string
}

func (e *ClassificationError) Error() string {
	if e.MediaType == "" {
		return "not a streaming socket: missing Content-Type header"
	}
	return fmt.Sprintf("not a streaming socket: unrecognized Content-Type %q", e.MediaType)
}

// FrameParseError reports a malformed multiplexed stream. Offset is the
// number of bytes decoded before the failure.
type FrameParseError struct {
	Offset int64
	Reason string
	Err    error
}

func (e *FrameParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed frame at offset %d: %s", e.Offset, e.Reason)
}

func (e *FrameParseError) Unwrap() error { return e.Err }

// SinkError reports a failure of a caller-supplied consumer.
type SinkError struct {
	Stream StreamType
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink failed: %v", e.Stream, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// SourceError reports a failure of a caller-supplied producer.
type SourceError struct {
	Stream StreamType
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source failed: %v", e.Stream, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// RemoteError carries the message of a system-error frame sent by the engine.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("engine reported an error: %s", e.Message)
}
