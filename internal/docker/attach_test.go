package docker_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ryanmoran/contattach/internal/docker"
	"github.com/ryanmoran/contattach/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Write(p []byte) (int, error) { return len(p), nil }
func (c *closeRecorder) Close() error                { c.closed = true; return nil }

func TestContainerAttach(t *testing.T) {
	t.Run("attaches with stdin and classifies a multiplexed stream", func(t *testing.T) {
		ctx := context.Background()
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return newEngineProcess(ctx, "", ""), stream.MediaTypeMultiplexedStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{OpenStdin: true})

		socket, err := container.Attach(ctx, true)
		require.NoError(t, err)
		defer socket.Close()

		assert.IsType(t, &stream.MultiplexedSocket{}, socket)

		calls := streamer.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, http.MethodPost, calls[0].method)
		assert.Equal(t, "/containers/container123/attach", calls[0].path)
		assert.Equal(t, "1", calls[0].query.Get("stream"))
		assert.Equal(t, "1", calls[0].query.Get("stdout"))
		assert.Equal(t, "1", calls[0].query.Get("stderr"))
		assert.Equal(t, "1", calls[0].query.Get("stdin"))
	})

	t.Run("classifies a TTY stream as raw and leaves stdin detached", func(t *testing.T) {
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return newRawProcess(""), stream.MediaTypeRawStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{TTY: true})

		socket, err := container.Attach(context.Background(), false)
		require.NoError(t, err)
		defer socket.Close()

		assert.IsType(t, &stream.RawSocket{}, socket)
		assert.False(t, streamer.Calls()[0].query.Has("stdin"))
	})

	t.Run("refuses a response that is not a stream", func(t *testing.T) {
		body := &closeRecorder{Reader: strings.NewReader(`{"message":"nope"}`)}
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return body, "application/json", nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{})

		_, err := container.Attach(context.Background(), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open attach stream")

		var classification *stream.ClassificationError
		require.ErrorAs(t, err, &classification)
		assert.Equal(t, "application/json", classification.MediaType)
		assert.True(t, body.closed)
	})

	t.Run("fails when the engine refuses the request", func(t *testing.T) {
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return nil, "", errors.New("container is not running")
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{})

		_, err := container.Attach(context.Background(), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to attach to container")
		assert.Contains(t, err.Error(), "container is not running")
	})
}

func TestContainerAttachStreams(t *testing.T) {
	t.Run("separates stdout and stderr and forwards stdin", func(t *testing.T) {
		ctx := context.Background()
		proc := newEngineProcess(ctx, "building\n", "warning: slow\n")
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return proc, stream.MediaTypeMultiplexedStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{OpenStdin: true})

		var stdout, stderr bytes.Buffer
		session, err := container.AttachStreams(ctx, docker.Streams{
			Stdin:  strings.NewReader("typed input"),
			Stdout: &stdout,
			Stderr: &stderr,
		})
		require.NoError(t, err)

		require.NoError(t, session.Wait())
		assert.Equal(t, "building\n", stdout.String())
		assert.Equal(t, "warning: slow\n", stderr.String())
		assert.Equal(t, "typed input", proc.input.String())
	})

	t.Run("writes TTY output to stdout", func(t *testing.T) {
		proc := newRawProcess("$ ls\r\nREADME.md\r\n")
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return proc, stream.MediaTypeRawStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{TTY: true, OpenStdin: true})

		var stdout, stderr bytes.Buffer
		session, err := container.AttachStreams(context.Background(), docker.Streams{
			Stdin:  strings.NewReader("ls\n"),
			Stdout: &stdout,
			Stderr: &stderr,
		})
		require.NoError(t, err)

		require.NoError(t, session.Wait())
		assert.Equal(t, "$ ls\r\nREADME.md\r\n", stdout.String())
		assert.Empty(t, stderr.String())
		assert.Eventually(t, func() bool {
			return proc.input.String() == "ls\n"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("decodes output with the configured encoding", func(t *testing.T) {
		ctx := context.Background()
		proc := newEngineProcess(ctx, "caf\xe9\n", "")
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return proc, stream.MediaTypeMultiplexedStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{})

		var stdout bytes.Buffer
		session, err := container.AttachStreams(ctx, docker.Streams{Stdout: &stdout}, stream.WithEncoding(charmap.ISO8859_1))
		require.NoError(t, err)

		require.NoError(t, session.Wait())
		assert.Equal(t, "café\n", stdout.String())
	})

	t.Run("reports a malformed stream", func(t *testing.T) {
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				// a raw engine answering with a multiplexed content type
				return newRawProcess("plain text that is not framed"), stream.MediaTypeMultiplexedStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{})

		session, err := container.AttachStreams(context.Background(), docker.Streams{Stdout: io.Discard})
		require.NoError(t, err)

		var parseErr *stream.FrameParseError
		require.ErrorAs(t, session.Wait(), &parseErr)
	})

	t.Run("close stops a session that is still streaming", func(t *testing.T) {
		ctx := context.Background()
		pr, pw := io.Pipe()
		defer pw.Close()

		proc := stream.Pack(ctx, stream.PackSources{
			Stdout: stream.NewRawChannel(pr, nil),
		})
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return proc, stream.MediaTypeMultiplexedStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{})

		var stdout lockedBuffer
		session, err := container.AttachStreams(ctx, docker.Streams{Stdout: &stdout})
		require.NoError(t, err)

		_, err = pw.Write([]byte("tick\n"))
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return stdout.String() == "tick\n"
		}, time.Second, 5*time.Millisecond)

		closed := make(chan error, 1)
		go func() { closed <- session.Close() }()

		select {
		case err := <-closed:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("session did not stop")
		}
	})
}

func TestContainerAttachChannels(t *testing.T) {
	t.Run("splits the stream into three channels", func(t *testing.T) {
		ctx := context.Background()
		proc := newEngineProcess(ctx, "out", "err")
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return proc, stream.MediaTypeMultiplexedStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{OpenStdin: true})

		fanned, err := container.AttachChannels(ctx)
		require.NoError(t, err)
		defer fanned.Close()

		_, err = fanned.Stdin.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, fanned.Stdin.CloseWrite())

		stdout, err := io.ReadAll(fanned.Stdout)
		require.NoError(t, err)
		stderr, err := io.ReadAll(fanned.Stderr)
		require.NoError(t, err)

		assert.Equal(t, "out", string(stdout))
		assert.Equal(t, "err", string(stderr))
		require.NoError(t, fanned.Wait())
		assert.Eventually(t, func() bool {
			return proc.input.String() == "hello"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("refuses a TTY container", func(t *testing.T) {
		proc := &closeRecorder{Reader: strings.NewReader("")}
		streamer := &mockStreamer{
			streamFunc: func(call streamCall) (stream.Transport, string, error) {
				return proc, stream.MediaTypeRawStream, nil
			},
		}
		container := createContainer(t, &mockDockerClient{}, streamer, docker.ContainerConfig{TTY: true})

		_, err := container.AttachChannels(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TTY")
		assert.True(t, proc.closed)
	})
}
