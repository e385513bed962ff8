package docker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/contattach/internal"
)

type Container struct {
	client   DockerClient
	streamer Streamer
	logger   hclog.Logger

	ID          string
	Name        string
	TTY         bool
	StopTimeout int
	TTYRetries  int
	RetryDelay  time.Duration
}

// Start starts the container. Returns an error if the container fails to start,
// which may indicate a misconfiguration or an unhealthy Docker daemon.
func (c Container) Start(ctx context.Context) error {
	_, err := c.client.ContainerStart(ctx, c.ID, client.ContainerStartOptions{})
	if err != nil {
		return fmt.Errorf("failed to start container %q: %w\nContainer may be misconfigured or Docker daemon may be unhealthy", c.Name, err)
	}

	return nil
}

// Wait waits for the container to exit or for an interrupt signal (SIGINT, SIGTERM)
// and returns the exit status. If a signal is received, it attempts to gracefully stop
// the container with the configured timeout and reports 128 plus the signal number.
// Returns an error if waiting for the container fails.
func (c Container) Wait(ctx context.Context, w internal.Writer) (int, error) {
	wait := c.client.ContainerWait(ctx, c.ID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-wait.Error:
		if err != nil {
			return 0, fmt.Errorf("failed to wait for container %q: %w\nDocker daemon may have encountered an error", c.Name, err)
		}
		return 0, nil
	case status := <-wait.Result:
		c.logger.Debug("container exited", "status", status.StatusCode)
		return int(status.StatusCode), nil
	case sig := <-sigChan:
		w.Println("\nReceived signal, stopping container...")
		timeout := c.StopTimeout
		_, err := c.client.ContainerStop(ctx, c.ID, client.ContainerStopOptions{Timeout: &timeout})
		if err != nil {
			w.Warningf("failed to stop container: %v", err)
		}
		code := 1
		if s, ok := sig.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		return code, nil
	}
}

// Remove removes the container from the Docker daemon.
// Returns an error if the container is still running or cannot be removed.
// Use ForceRemove to remove a running container.
func (c Container) Remove(ctx context.Context) error {
	_, err := c.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove container %q: %w\nContainer may still be running - use ForceRemove if needed", c.Name, err)
	}

	return nil
}

// ForceRemove forcibly removes the container from the Docker daemon, even if it is still running.
// Returns an error if the container cannot be removed, which may indicate an inconsistent state.
func (c Container) ForceRemove(ctx context.Context) error {
	_, err := c.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to force remove container %q: %w\nContainer may be in an inconsistent state", c.Name, err)
	}

	return nil
}
