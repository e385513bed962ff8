package docker

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/contattach/internal"
	"github.com/ryanmoran/contattach/internal/hijack"
)

type Image struct {
	Name string
}

type Client struct {
	client   DockerClient
	streamer Streamer
	logger   hclog.Logger
}

type ClientOption func(*Client)

// WithLogger sets the logger for the client and every container it returns.
func WithLogger(logger hclog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client from a lifecycle client and a Streamer for the
// attach and exec endpoints.
func NewClient(dockerClient DockerClient, streamer Streamer, opts ...ClientOption) Client {
	c := Client{
		client:   dockerClient,
		streamer: streamer,
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewDefaultClient creates a Client for the engine at host, or the
// environment's DOCKER_HOST when host is empty. apiVersion pins the version
// used for streaming requests; lifecycle requests negotiate their own.
func NewDefaultClient(host, apiVersion string, logger hclog.Logger) (Client, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if host == "" {
		host = os.Getenv(client.EnvOverrideHost)
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.New(opts...)
	if err != nil {
		return Client{}, fmt.Errorf("failed to create docker client: %w\nEnsure Docker is running and DOCKER_HOST is set correctly", err)
	}

	streamer, err := hijack.NewClient(host,
		hijack.WithAPIVersion(apiVersion),
		hijack.WithLogger(logger.Named("hijack")),
	)
	if err != nil {
		cli.Close()
		return Client{}, fmt.Errorf("failed to create streaming client: %w\nCheck the --host value or DOCKER_HOST", err)
	}

	return NewClient(cli, streamer, WithLogger(logger)), nil
}

// Close closes the underlying Docker client connections.
func (c Client) Close() {
	c.client.Close()
	c.streamer.Close()
}

// BuildImage builds a Docker image from a Dockerfile and tags it with the specified image name.
// It creates a tar archive containing the Dockerfile, sends it to the Docker daemon, and streams
// the build output to the provided Writer. Returns an error if the Dockerfile cannot be read,
// the tar archive cannot be created, the image build fails, or the build output cannot be decoded.
func (c Client) BuildImage(ctx context.Context, dockerfilePath string, imageName internal.ImageName, w internal.Writer) (Image, error) {
	dockerfile, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read Dockerfile at %q: %w\nCheck that the file exists and is readable", dockerfilePath, err)
	}

	pr, pw := io.Pipe()
	defer pr.Close()

	errChan := make(chan error, 1)
	go func() {
		errChan <- writeBuildContext(pw, dockerfile)
	}()

	c.logger.Debug("building image", "image", imageName, "dockerfile", dockerfilePath)
	response, err := c.client.ImageBuild(ctx, pr, client.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{string(imageName)},
		Remove:     true,
	})
	if err != nil {
		return Image{}, fmt.Errorf("failed to build image %q: %w\nCheck Docker daemon logs for details", imageName, err)
	}
	defer response.Body.Close()

	select {
	case err := <-errChan:
		if err != nil {
			return Image{}, err
		}
	case <-ctx.Done():
		return Image{}, ctx.Err()
	default:
	}

	decoder := json.NewDecoder(response.Body)
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return Image{}, err
		}

		var output struct {
			Stream      string `json:"stream"`
			ErrorDetail struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := decoder.Decode(&output); err != nil {
			return Image{}, fmt.Errorf("failed to decode build output: %w\nDocker may have returned malformed JSON", err)
		}

		if output.ErrorDetail.Code != 0 {
			return Image{}, fmt.Errorf("docker build failed: %s\nCheck your Dockerfile syntax and base image availability", output.ErrorDetail.Message)
		}

		w.Print(output.Stream)
	}

	return Image{Name: string(imageName)}, nil
}

func writeBuildContext(pw *io.PipeWriter, dockerfile []byte) error {
	tw := tar.NewWriter(pw)
	defer func() {
		tw.Close()
		pw.Close()
	}()

	header := &tar.Header{
		Name: "Dockerfile",
		Mode: 0644,
		Size: int64(len(dockerfile)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for Dockerfile: %w\nThis is a system error with tar archive creation", err)
	}
	if _, err := tw.Write(dockerfile); err != nil {
		return fmt.Errorf("failed to write Dockerfile to tar archive: %w\nThis is a system error with tar archive creation", err)
	}
	return nil
}

// ContainerConfig describes a container to create.
type ContainerConfig struct {
	Name       internal.SessionID
	Image      Image
	Command    internal.Command
	Env        internal.Environment
	Volumes    []string
	WorkingDir string
	Network    string

	// TTY allocates a terminal, which makes the engine stream raw output
	// instead of multiplexed frames.
	TTY bool
	// OpenStdin keeps stdin open so it can be attached.
	OpenStdin bool

	StopTimeout int
	TTYRetries  int
	RetryDelay  time.Duration
}

// CreateContainer creates a new Docker container with the specified configuration.
// The container is set up to attach stdout and stderr, and stdin when OpenStdin is set.
// Returns a Container handle or an error if creation fails.
func (c Client) CreateContainer(ctx context.Context, config ContainerConfig) (Container, error) {
	response, err := c.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:        config.Image.Name,
			Cmd:          []string(config.Command),
			Tty:          config.TTY,
			OpenStdin:    config.OpenStdin,
			StdinOnce:    config.OpenStdin,
			AttachStdin:  config.OpenStdin,
			AttachStdout: true,
			AttachStderr: true,
			Env:          []string(config.Env),
			WorkingDir:   config.WorkingDir,
		},
		HostConfig: &container.HostConfig{
			Binds:       config.Volumes,
			NetworkMode: container.NetworkMode(config.Network),
		},
		Name: string(config.Name),
	})
	if err != nil {
		return Container{}, fmt.Errorf("failed to create container %q from image %q: %w\nEnsure image exists and container config is valid", config.Name, config.Image.Name, err)
	}

	c.logger.Debug("created container", "id", response.ID, "name", config.Name, "tty", config.TTY)

	return Container{
		ID:          response.ID,
		Name:        string(config.Name),
		TTY:         config.TTY,
		client:      c.client,
		streamer:    c.streamer,
		logger:      c.logger.Named("container").With("container", string(config.Name)),
		StopTimeout: config.StopTimeout,
		TTYRetries:  config.TTYRetries,
		RetryDelay:  config.RetryDelay,
	}, nil
}

// Ping pings the Docker daemon and returns the API version if successful.
func (c Client) Ping(ctx context.Context) (string, error) {
	ping, err := c.client.Ping(ctx, client.PingOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to ping docker daemon: %w\nEnsure Docker is running and reachable", err)
	}
	return ping.APIVersion, nil
}

// FindContainer returns the container whose ID, ID prefix or name matches
// nameOrID. Stopped containers are included so the error can say so.
func (c Client) FindContainer(ctx context.Context, nameOrID string) (Container, error) {
	result, err := c.client.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return Container{}, fmt.Errorf("failed to list containers: %w\nEnsure Docker is running and reachable", err)
	}

	for _, item := range result.Items {
		if !matchesContainer(item.ID, item.Names, nameOrID) {
			continue
		}

		name := item.ID
		if len(item.Names) > 0 {
			name = strings.TrimPrefix(item.Names[0], "/")
		}
		return Container{
			ID:       item.ID,
			Name:     name,
			client:   c.client,
			streamer: c.streamer,
			logger:   c.logger.Named("container").With("container", name),
		}, nil
	}

	return Container{}, fmt.Errorf("no such container %q\nList running containers with 'docker ps'", nameOrID)
}

// matchesContainer accepts a full ID, an ID prefix of at least 12
// characters, or any of the container's names.
func matchesContainer(id string, names []string, nameOrID string) bool {
	if id == nameOrID || (len(nameOrID) >= 12 && strings.HasPrefix(id, nameOrID)) {
		return true
	}
	for _, name := range names {
		if strings.TrimPrefix(name, "/") == nameOrID {
			return true
		}
	}
	return false
}
