package docker

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/armon/circbuf"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/contattach/internal/hijack"
	"github.com/ryanmoran/contattach/internal/stream"
)

// DefaultOutputLimit is how many trailing bytes of each stream Exec keeps.
const DefaultOutputLimit = 64 * 1024

type ExecOptions struct {
	Cmd        []string
	Env        []string
	WorkingDir string
	TTY        bool

	// Stdin, when set, is attached and copied to the process.
	Stdin io.Reader
	// Stdout and Stderr, when set, receive output as it arrives.
	Stdout io.Writer
	Stderr io.Writer

	// OutputLimit bounds the output kept in the result. Zero means
	// DefaultOutputLimit.
	OutputLimit int64

	StreamOptions []stream.Option
}

type ExecResult struct {
	ID       string
	ExitCode int
	Stdout   string
	Stderr   string
	// Truncated reports that older output was dropped to stay within the
	// output limit.
	Truncated bool
}

// Exec runs a command in the running container, streams its output and
// returns the tail of each stream together with the exit code.
func (c Container) Exec(ctx context.Context, opts ExecOptions) (ExecResult, error) {
	created, err := c.client.ExecCreate(ctx, c.ID, client.ExecCreateOptions{
		TTY:          opts.TTY,
		AttachStdin:  opts.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
		Env:          opts.Env,
		WorkingDir:   opts.WorkingDir,
		Cmd:          opts.Cmd,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to create exec in container %q: %w\nContainer may not be running", c.Name, err)
	}

	logger := c.logger.With("exec", created.ID)
	logger.Debug("exec created", "cmd", opts.Cmd, "tty", opts.TTY)

	resp, err := c.streamer.Stream(ctx, http.MethodPost, "/exec/"+created.ID+"/start", nil, container.ExecStartRequest{Tty: opts.TTY})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to start exec in container %q: %w\nContainer may have stopped", c.Name, err)
	}

	socket, err := hijack.ToStreamingSocket(resp)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to open exec stream in container %q: %w\nThe Docker API returned a response that is not a stream", c.Name, err)
	}
	defer socket.Close()

	limit := opts.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	stdout, err := circbuf.NewBuffer(limit)
	if err != nil {
		return ExecResult{}, err
	}
	stderr, err := circbuf.NewBuffer(limit)
	if err != nil {
		return ExecResult{}, err
	}

	streamOpts := append([]stream.Option{stream.WithLogger(logger)}, opts.StreamOptions...)
	err = stream.Demux(ctx, socket, opts.Stdin, tee(stdout, opts.Stdout), tee(stderr, opts.Stderr), streamOpts...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec %v in container %q failed: %w", opts.Cmd, c.Name, err)
	}

	inspect, err := c.client.ExecInspect(ctx, created.ID, client.ExecInspectOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to inspect exec in container %q: %w", c.Name, err)
	}
	logger.Debug("exec finished", "exit_code", inspect.ExitCode, "running", inspect.Running)

	return ExecResult{
		ID:        created.ID,
		ExitCode:  inspect.ExitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.TotalWritten() > stdout.Size() || stderr.TotalWritten() > stderr.Size(),
	}, nil
}

func tee(buf io.Writer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
