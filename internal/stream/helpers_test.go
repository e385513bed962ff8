package stream_test

import (
	"bytes"
	"io"
	"sync"

	"github.com/ryanmoran/contattach/internal/stream"
)

// fakeTransport serves a fixed or piped output and records its input.
type fakeTransport struct {
	r  io.Reader
	rc io.Closer

	mu          sync.Mutex
	input       bytes.Buffer
	closeWrites int
	closes      int
	reads       int
	writeErr    error
}

func newTransport(output []byte) *fakeTransport {
	return &fakeTransport{r: bytes.NewReader(output)}
}

func newPipeTransport() (*fakeTransport, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &fakeTransport{r: pr, rc: pr}, pw
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	t.reads++
	t.mu.Unlock()
	return t.r.Read(p)
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	if t.closes > 0 {
		return 0, io.ErrClosedPipe
	}
	return t.input.Write(p)
}

func (t *fakeTransport) CloseWrite() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeWrites++
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	if t.rc != nil {
		return t.rc.Close()
	}
	return nil
}

func (t *fakeTransport) Input() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input.String()
}

func (t *fakeTransport) CloseWrites() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeWrites
}

func (t *fakeTransport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// syncBuffer is a bytes.Buffer safe for a writer and a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// countingWriter counts writes and can be held shut until released.
type countingWriter struct {
	mu      sync.Mutex
	writes  int
	buf     bytes.Buffer
	release chan struct{}
}

func newGatedWriter() *countingWriter {
	return &countingWriter{release: make(chan struct{})}
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	return w.buf.Write(p)
}

func (w *countingWriter) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

type failingReader struct {
	err error
}

func (r failingReader) Read(p []byte) (int, error) { return 0, r.err }

func encode(frames ...stream.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = stream.AppendFrame(out, f.Type, f.Payload)
	}
	return out
}

func frame(t stream.StreamType, payload string) stream.Frame {
	return stream.Frame{Type: t, Payload: []byte(payload)}
}
