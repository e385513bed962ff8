package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/docker/cli/cli/streams"
	"github.com/moby/term"
	"github.com/ryanmoran/contattach/internal"
	"github.com/ryanmoran/contattach/internal/hijack"
	"github.com/ryanmoran/contattach/internal/stream"
)

// Streams are the local ends of an attachment. Any of them may be nil.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Session is an attachment whose streams are copied in the background.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newSession(ctx context.Context, run func(context.Context) error) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		defer cancel()
		s.err = run(ctx)
	}()
	return s
}

// Wait blocks until the container's output has ended and returns the
// error that ended it, if any.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Close stops copying and waits for the session to finish.
func (s *Session) Close() error {
	s.cancel()
	if err := s.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Attach opens the container's attach stream and returns it classified by
// its wire format: a *stream.RawSocket for TTY containers and a
// *stream.MultiplexedSocket otherwise. Stdin is attached when stdin is true.
// The caller closes the socket.
func (c Container) Attach(ctx context.Context, stdin bool) (stream.Socket, error) {
	query := url.Values{
		"stream": {"1"},
		"stdout": {"1"},
		"stderr": {"1"},
	}
	if stdin {
		query.Set("stdin", "1")
	}

	resp, err := c.streamer.Stream(ctx, http.MethodPost, "/containers/"+c.ID+"/attach", query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container %q: %w\nContainer may have exited prematurely or Docker API is unreachable", c.Name, err)
	}

	socket, err := hijack.ToStreamingSocket(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to open attach stream for container %q: %w\nThe Docker API returned a response that is not a stream", c.Name, err)
	}

	c.logger.Debug("attached", "content_type", socket.ContentType(), "stdin", stdin)
	return socket, nil
}

// AttachStreams attaches to the container and copies its output to
// s.Stdout and s.Stderr, and s.Stdin to its input, until the output ends.
// A TTY container's output all goes to s.Stdout.
func (c Container) AttachStreams(ctx context.Context, s Streams, opts ...stream.Option) (*Session, error) {
	socket, err := c.Attach(ctx, s.Stdin != nil)
	if err != nil {
		return nil, err
	}

	opts = append([]stream.Option{stream.WithLogger(c.logger)}, opts...)
	return newSession(ctx, func(ctx context.Context) error {
		defer socket.Close()
		return stream.Demux(ctx, socket, s.Stdin, s.Stdout, s.Stderr, opts...)
	}), nil
}

// AttachChannels attaches to a container without a TTY and splits its
// stream into independent stdin, stdout and stderr channels. The attach
// connection is closed once the channels complete.
func (c Container) AttachChannels(ctx context.Context, opts ...stream.Option) (*stream.Fanned, error) {
	socket, err := c.Attach(ctx, true)
	if err != nil {
		return nil, err
	}

	opts = append([]stream.Option{stream.WithLogger(c.logger)}, opts...)
	fanned, err := stream.Fan(ctx, socket, opts...)
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to split streams of container %q: %w\nContainers with a TTY have a single output stream", c.Name, err)
	}

	go func() {
		_ = fanned.Wait()
		socket.Close()
	}()

	return fanned, nil
}

// AttachTerminal attaches the local terminal to the container. It sets the
// terminal to raw mode, keeps the container's TTY size in sync and restores
// the terminal once the container's output ends.
func (c Container) AttachTerminal(ctx context.Context, w internal.Writer, opts ...stream.Option) (*Session, error) {
	stdin, stdout, stderr := term.StdStreams()
	in := streams.NewIn(stdin)
	out := streams.NewOut(stdout)

	socket, err := c.Attach(ctx, true)
	if err != nil {
		return nil, err
	}

	if err := in.SetRawTerminal(); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set stdin to raw terminal mode: %w\nYour terminal may not support TTY operations", err)
	}
	if err := out.SetRawTerminal(); err != nil {
		in.RestoreTerminal()
		socket.Close()
		return nil, fmt.Errorf("failed to set stdout to raw terminal mode: %w\nYour terminal may not support TTY operations", err)
	}

	opts = append([]stream.Option{stream.WithLogger(c.logger)}, opts...)
	return newSession(ctx, func(ctx context.Context) error {
		defer func() {
			in.RestoreTerminal()
			out.RestoreTerminal()
		}()
		defer socket.Close()

		tty := NewTTY(c.client, out, c.ID, c.TTYRetries, c.RetryDelay, w)
		if err := tty.Monitor(ctx); err != nil {
			return fmt.Errorf("failed to monitor tty size: %w", err)
		}

		return stream.Demux(ctx, socket, in, out, stderr, opts...)
	}), nil
}
