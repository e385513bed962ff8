package internal

import (
	"fmt"
	"io"
	"os"
)

// Writer is the user-facing output of a run: container output and build
// progress on one stream, warnings and fatal errors on the other.
// Diagnostics go to the hclog logger instead.
type Writer interface {
	Print(v ...any)
	Printf(format string, v ...any)
	Println(v ...any)

	// Warning and Warningf prefix the message with "Warning: " and end it
	// with a newline.
	Warning(v ...any)
	Warningf(format string, v ...any)

	// Fatal and Fatalf report an error and end the process with status 1.
	Fatal(v ...any)
	Fatalf(format string, v ...any)

	// GetWriter returns the stream container stdout is copied to.
	GetWriter() io.Writer
	// GetErrorWriter returns the stream container stderr and logs are
	// copied to.
	GetErrorWriter() io.Writer
}

type StandardWriter struct {
	out  io.Writer
	err  io.Writer
	exit func(int)
}

type WriterOption func(*StandardWriter)

// WithExit replaces os.Exit as the way Fatal ends the process.
func WithExit(exit func(int)) WriterOption {
	return func(w *StandardWriter) {
		w.exit = exit
	}
}

// NewStandardWriter writes to the process's stdout and stderr.
func NewStandardWriter() *StandardWriter {
	return NewCustomWriter(os.Stdout, os.Stderr)
}

// NewCustomWriter writes output to out and warnings and errors to err.
func NewCustomWriter(out, err io.Writer, opts ...WriterOption) *StandardWriter {
	w := &StandardWriter{out: out, err: err, exit: os.Exit}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *StandardWriter) Print(v ...any) {
	fmt.Fprint(w.out, v...)
}

func (w *StandardWriter) Printf(format string, v ...any) {
	fmt.Fprintf(w.out, format, v...)
}

func (w *StandardWriter) Println(v ...any) {
	fmt.Fprintln(w.out, v...)
}

func (w *StandardWriter) Warning(v ...any) {
	fmt.Fprint(w.err, "Warning: "+fmt.Sprintln(v...))
}

func (w *StandardWriter) Warningf(format string, v ...any) {
	fmt.Fprintf(w.err, "Warning: "+format+"\n", v...)
}

func (w *StandardWriter) Fatal(v ...any) {
	fmt.Fprintln(w.err, v...)
	w.exit(1)
}

func (w *StandardWriter) Fatalf(format string, v ...any) {
	fmt.Fprintf(w.err, format+"\n", v...)
	w.exit(1)
}

func (w *StandardWriter) GetWriter() io.Writer {
	return w.out
}

func (w *StandardWriter) GetErrorWriter() io.Writer {
	return w.err
}
