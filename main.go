package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ryanmoran/contattach/internal"
	"github.com/ryanmoran/contattach/internal/docker"
	"github.com/ryanmoran/contattach/internal/stream"
)

func main() {
	w := internal.NewStandardWriter()
	defer func() {
		if r := recover(); r != nil {
			w.Fatalf("panic occurred: %v", r)
		}
	}()

	code, err := run(os.Args, os.Environ(), os.Stdin, w)
	if err != nil {
		w.Fatal(err)
	}
	os.Exit(code)
}

// run executes one contattach invocation and returns the exit code of the
// container process.
func run(args, env []string, stdin io.Reader, w internal.Writer) (code int, err error) {
	config, err := internal.ParseConfig(args[1:], env)
	if errors.Is(err, flag.ErrHelp) {
		w.Print(internal.Usage())
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	logger := internal.NewLogger(config.LogLevel, w.GetErrorWriter())

	cleanupMgr := internal.NewCleanupManager(logger.Named("cleanup"))
	defer func() {
		if cerr := cleanupMgr.Execute(); cerr != nil {
			w.Warningf("%v", cerr)
		}
	}()

	// Create context with cancellation for proper goroutine cleanup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals to cancel context and cleanup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := docker.NewDefaultClient(config.Host, config.APIVersion, logger)
	if err != nil {
		return 0, err
	}
	cleanupMgr.Add("docker-client", func() error {
		client.Close()
		return nil
	})

	version, err := client.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reach docker daemon: %w\nMake sure Docker is installed and running (try 'docker ps')", err)
	}
	logger.Debug("connected to engine", "api_version", version)

	streamOpts := streamOptions(config, logger)

	if config.ExecContainer != "" {
		return execIn(ctx, client, config, stdin, w, streamOpts)
	}

	session := internal.GenerateSession()

	image := docker.Image{Name: string(config.ImageName)}
	if config.DockerfilePath != "" {
		image, err = client.BuildImage(ctx, config.DockerfilePath, config.ImageName, w)
		if err != nil {
			return 0, fmt.Errorf("failed to build docker image %q from %q: %w", config.ImageName, config.DockerfilePath, err)
		}
	}

	container, err := client.CreateContainer(ctx, docker.ContainerConfig{
		Name:        session.ID(),
		Image:       image,
		Command:     config.Args,
		Env:         config.Env,
		Volumes:     config.Volumes,
		WorkingDir:  config.WorkingDir,
		Network:     config.Network,
		TTY:         config.TTY,
		OpenStdin:   config.Interactive,
		StopTimeout: config.StopTimeout,
		TTYRetries:  config.TTYRetries,
		RetryDelay:  config.RetryDelay,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create container %q from image %q: %w", session.ID(), image.Name, err)
	}
	cleanupMgr.Add("container", func() error {
		return container.ForceRemove(context.Background())
	})

	// Attach before starting so no early output is lost.
	var attached *docker.Session
	if config.TTY {
		attached, err = container.AttachTerminal(ctx, w, streamOpts...)
	} else {
		streams := docker.Streams{
			Stdout: w.GetWriter(),
			Stderr: w.GetErrorWriter(),
		}
		if config.Interactive {
			streams.Stdin = stdin
		}
		attached, err = container.AttachStreams(ctx, streams, streamOpts...)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to attach to container %q: %w", session.ID(), err)
	}
	cleanupMgr.Add("attach", attached.Close)

	err = container.Start(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start container %q: %w", session.ID(), err)
	}

	// Wait stops the container itself when interrupted.
	signal.Stop(sigChan)

	code, err = container.Wait(ctx, w)
	if err != nil {
		return 0, fmt.Errorf("failed to wait for container %q: %w", session.ID(), err)
	}

	if err := attached.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		w.Warningf("output of container %q ended early: %v", session.ID(), err)
	}
	logger.Debug("container exited", "container", session.ID(), "status", code, "elapsed", time.Since(session.Started()))

	return code, nil
}

func execIn(ctx context.Context, client docker.Client, config internal.Config, stdin io.Reader, w internal.Writer, streamOpts []stream.Option) (int, error) {
	container, err := client.FindContainer(ctx, config.ExecContainer)
	if err != nil {
		return 0, err
	}

	opts := docker.ExecOptions{
		Cmd:           config.Args,
		Env:           config.Env,
		WorkingDir:    config.WorkingDir,
		TTY:           config.TTY,
		Stdout:        w.GetWriter(),
		Stderr:        w.GetErrorWriter(),
		StreamOptions: streamOpts,
	}
	if config.Interactive {
		opts.Stdin = stdin
	}

	result, err := container.Exec(ctx, opts)
	if err != nil {
		return 0, err
	}

	return result.ExitCode, nil
}

func streamOptions(config internal.Config, logger hclog.Logger) []stream.Option {
	opts := []stream.Option{
		stream.WithBufferSize(config.BufferSize),
		stream.WithCapacity(config.Capacity),
		stream.WithLogger(logger.Named("stream")),
	}
	if config.Encoding != nil {
		opts = append(opts, stream.WithEncoding(config.Encoding))
	}
	return opts
}
