package docker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	containertypes "github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/contattach/internal/stream"
)

// mockDockerClient is a mock implementation of docker.DockerClient for testing
type mockDockerClient struct {
	imageBuildFunc      func(ctx context.Context, buildContext io.Reader, options client.ImageBuildOptions) (client.ImageBuildResult, error)
	containerCreateFunc func(ctx context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	containerStartFunc  func(ctx context.Context, containerID string, options client.ContainerStartOptions) (client.ContainerStartResult, error)
	containerWaitFunc   func(ctx context.Context, containerID string, options client.ContainerWaitOptions) client.ContainerWaitResult
	containerStopFunc   func(ctx context.Context, containerID string, options client.ContainerStopOptions) (client.ContainerStopResult, error)
	containerRemoveFunc func(ctx context.Context, containerID string, options client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	containerResizeFunc func(ctx context.Context, containerID string, options client.ContainerResizeOptions) (client.ContainerResizeResult, error)
	pingFunc            func(ctx context.Context, options client.PingOptions) (client.PingResult, error)
	containerListFunc   func(ctx context.Context, options client.ContainerListOptions) (client.ContainerListResult, error)
	execCreateFunc      func(ctx context.Context, containerID string, options client.ExecCreateOptions) (client.ExecCreateResult, error)
	execInspectFunc     func(ctx context.Context, execID string, options client.ExecInspectOptions) (client.ExecInspectResult, error)
	closeFunc           func() error
}

func (m *mockDockerClient) ImageBuild(ctx context.Context, buildContext io.Reader, options client.ImageBuildOptions) (client.ImageBuildResult, error) {
	if m.imageBuildFunc != nil {
		return m.imageBuildFunc(ctx, buildContext, options)
	}
	return client.ImageBuildResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ContainerCreate(ctx context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error) {
	if m.containerCreateFunc != nil {
		return m.containerCreateFunc(ctx, options)
	}
	return client.ContainerCreateResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ContainerStart(ctx context.Context, containerID string, options client.ContainerStartOptions) (client.ContainerStartResult, error) {
	if m.containerStartFunc != nil {
		return m.containerStartFunc(ctx, containerID, options)
	}
	return client.ContainerStartResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ContainerWait(ctx context.Context, containerID string, options client.ContainerWaitOptions) client.ContainerWaitResult {
	if m.containerWaitFunc != nil {
		return m.containerWaitFunc(ctx, containerID, options)
	}
	errCh := make(chan error, 1)
	resCh := make(chan containertypes.WaitResponse, 1)
	errCh <- errors.New("not implemented")
	return client.ContainerWaitResult{Error: errCh, Result: resCh}
}

func (m *mockDockerClient) ContainerStop(ctx context.Context, containerID string, options client.ContainerStopOptions) (client.ContainerStopResult, error) {
	if m.containerStopFunc != nil {
		return m.containerStopFunc(ctx, containerID, options)
	}
	return client.ContainerStopResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ContainerRemove(ctx context.Context, containerID string, options client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
	if m.containerRemoveFunc != nil {
		return m.containerRemoveFunc(ctx, containerID, options)
	}
	return client.ContainerRemoveResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ContainerResize(ctx context.Context, containerID string, options client.ContainerResizeOptions) (client.ContainerResizeResult, error) {
	if m.containerResizeFunc != nil {
		return m.containerResizeFunc(ctx, containerID, options)
	}
	return client.ContainerResizeResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error) {
	if m.pingFunc != nil {
		return m.pingFunc(ctx, options)
	}
	return client.PingResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ContainerList(ctx context.Context, options client.ContainerListOptions) (client.ContainerListResult, error) {
	if m.containerListFunc != nil {
		return m.containerListFunc(ctx, options)
	}
	return client.ContainerListResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ExecCreate(ctx context.Context, containerID string, options client.ExecCreateOptions) (client.ExecCreateResult, error) {
	if m.execCreateFunc != nil {
		return m.execCreateFunc(ctx, containerID, options)
	}
	return client.ExecCreateResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) ExecInspect(ctx context.Context, execID string, options client.ExecInspectOptions) (client.ExecInspectResult, error) {
	if m.execInspectFunc != nil {
		return m.execInspectFunc(ctx, execID, options)
	}
	return client.ExecInspectResult{}, errors.New("not implemented")
}

func (m *mockDockerClient) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type streamCall struct {
	method string
	path   string
	query  url.Values
	body   string
}

// mockStreamer is a mock implementation of docker.Streamer. Responses are
// 101 upgrades whose body is the connection returned by
// streamFunc.
type mockStreamer struct {
	streamFunc func(call streamCall) (stream.Transport, string, error)

	mu    sync.Mutex
	calls []streamCall
}

func (m *mockStreamer) record(method, path string, query url.Values, body any) (streamCall, error) {
	call := streamCall{method: method, path: path, query: query}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return call, err
		}
		call.body = string(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return call, nil
}

func (m *mockStreamer) Calls() []streamCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]streamCall(nil), m.calls...)
}

func (m *mockStreamer) Stream(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	call, err := m.record(method, path, query, body)
	if err != nil {
		return nil, err
	}
	if m.streamFunc == nil {
		return nil, errors.New("not implemented")
	}

	conn, contentType, err := m.streamFunc(call)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)
	return &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header:     header,
		Body:       conn,
	}, nil
}

func (m *mockStreamer) Close() {}

// engineProcess is the engine side of an attach or exec stream: a packed
// multiplexed connection whose input is recorded.
type engineProcess struct {
	*stream.Packed
	input *lockedBuffer
}

func newEngineProcess(ctx context.Context, stdout, stderr string) *engineProcess {
	input := &lockedBuffer{}
	src := stream.PackSources{
		Stdin: stream.NewRawChannel(nil, input),
	}
	if stdout != "" {
		src.Stdout = stream.NewRawChannel(strings.NewReader(stdout), nil)
	}
	if stderr != "" {
		src.Stderr = stream.NewRawChannel(strings.NewReader(stderr), nil)
	}
	return &engineProcess{Packed: stream.Pack(ctx, src), input: input}
}

// rawProcess is the engine side of a TTY stream.
type rawProcess struct {
	io.Reader
	input lockedBuffer
}

func newRawProcess(output string) *rawProcess {
	return &rawProcess{Reader: strings.NewReader(output)}
}

func (p *rawProcess) Write(b []byte) (int, error) { return p.input.Write(b) }
func (p *rawProcess) Close() error                { return nil }

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func notFound(path string) error {
	return fmt.Errorf("unexpected request for %s", path)
}
