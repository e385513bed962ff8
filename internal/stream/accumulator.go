package stream

import "encoding/binary"

// initialMessageCap bounds the up-front allocation for a payload so that a
// large declared length only costs memory as its bytes actually arrive.
const initialMessageCap = 32 * 1024

// Accumulator is the parser state for one frame. Feed it bytes with Step or
// Feed until Complete reports true, then take the frame with Frame and start
// over with a fresh Accumulator.
//
// Once the eighth header byte arrives the stream type and payload size are
// decoded and never change. The reserved header bytes 1-3 are ignored.
type Accumulator struct {
	headerBytesRead  int
	messageBytesRead uint32
	header           [HeaderSize]byte
	message          []byte
	messageSize      uint32
	messageType      StreamType
}

// Step consumes a single byte and reports whether the frame is complete.
// It must not be called on a complete Accumulator.
func (a *Accumulator) Step(b byte) bool {
	if a.headerBytesRead < HeaderSize {
		a.header[a.headerBytesRead] = b
		a.headerBytesRead++
		if a.headerBytesRead == HeaderSize {
			a.freeze()
		}
		return a.Complete()
	}

	a.message = append(a.message, b)
	a.messageBytesRead++
	return a.Complete()
}

// Feed consumes as many bytes of p as belong to the current frame. It
// returns the number of bytes consumed and whether the frame is complete.
// Bytes past the end of the frame are left for the next Accumulator.
func (a *Accumulator) Feed(p []byte) (int, bool) {
	consumed := 0

	if a.headerBytesRead < HeaderSize {
		n := copy(a.header[a.headerBytesRead:], p)
		a.headerBytesRead += n
		consumed += n
		if a.headerBytesRead < HeaderSize {
			return consumed, false
		}
		a.freeze()
	}

	remaining := a.messageSize - a.messageBytesRead
	n := len(p) - consumed
	if uint64(n) > uint64(remaining) {
		n = int(remaining)
	}
	a.message = append(a.message, p[consumed:consumed+n]...)
	a.messageBytesRead += uint32(n)
	consumed += n

	return consumed, a.Complete()
}

// Started reports whether any byte of the frame has been consumed.
func (a *Accumulator) Started() bool {
	return a.headerBytesRead > 0
}

// Complete reports whether the header and the whole payload have arrived.
func (a *Accumulator) Complete() bool {
	return a.headerBytesRead == HeaderSize && a.messageBytesRead == a.messageSize
}

// Frame returns the accumulated frame. Only meaningful once Complete.
func (a *Accumulator) Frame() Frame {
	payload := a.message
	if payload == nil {
		payload = []byte{}
	}
	return Frame{Type: a.messageType, Payload: payload}
}

func (a *Accumulator) freeze() {
	a.messageType = StreamType(a.header[0])
	a.messageSize = binary.BigEndian.Uint32(a.header[4:])
	a.message = make([]byte, 0, int(min(a.messageSize, initialMessageCap)))
}
