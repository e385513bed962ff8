package docker

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/moby/moby/client"
)

// DockerClient is an interface that wraps the Docker API methods we use for
// the container lifecycle. Streaming endpoints go through a Streamer instead.
//
// The real Docker client (*client.Client from moby/moby/client) implements this interface.
//
// Usage:
//
//	// Production code: use real Docker client and a hijacking client
//	dockerClient, err := client.New(client.FromEnv, client.WithAPIVersionNegotiation())
//	if err != nil {
//	    return err
//	}
//	streamer, err := hijack.NewClient(os.Getenv("DOCKER_HOST"))
//	if err != nil {
//	    return err
//	}
//	c := docker.NewClient(dockerClient, streamer)
//
//	// Or use the convenience function:
//	c, err := docker.NewDefaultClient(host, apiVersion, logger)
//
//	// Test code: inject mocks
//	c := docker.NewClient(&mockDockerClient{}, &mockStreamer{})
type DockerClient interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options client.ImageBuildOptions) (client.ImageBuildResult, error)
	ContainerCreate(ctx context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	ContainerStart(ctx context.Context, containerID string, options client.ContainerStartOptions) (client.ContainerStartResult, error)
	ContainerWait(ctx context.Context, containerID string, options client.ContainerWaitOptions) client.ContainerWaitResult
	ContainerStop(ctx context.Context, containerID string, options client.ContainerStopOptions) (client.ContainerStopResult, error)
	ContainerRemove(ctx context.Context, containerID string, options client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	ContainerResize(ctx context.Context, containerID string, options client.ContainerResizeOptions) (client.ContainerResizeResult, error)
	Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error)
	ContainerList(ctx context.Context, options client.ContainerListOptions) (client.ContainerListResult, error)
	ExecCreate(ctx context.Context, containerID string, options client.ExecCreateOptions) (client.ExecCreateResult, error)
	ExecInspect(ctx context.Context, execID string, options client.ExecInspectOptions) (client.ExecInspectResult, error)
	Close() error
}

// Streamer sends engine requests whose responses carry a stream, which the
// moby client cannot hand over with its content type. The *hijack.Client
// implements it.
type Streamer interface {
	Stream(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error)
	Close()
}
