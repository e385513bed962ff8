package hijack

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/docker/go-connections/sockets"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
)

// DefaultHost is the engine address used when none is configured.
const DefaultHost = "unix:///var/run/docker.sock"

// socketHost is the Host header sent over unix sockets, where the request
// has no meaningful authority.
const socketHost = "docker"

// Client sends requests to the engine API. Streaming requests dial their own
// connection so it can be handed to the caller once the response starts.
type Client struct {
	proto   string
	addr    string
	host    string
	version string

	transport *http.Transport
	logger    hclog.Logger
}

type Option func(*Client)

// WithAPIVersion prefixes request paths with /v<version>. Without it
// requests go to the engine's unversioned, latest API.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		c.version = strings.TrimPrefix(version, "v")
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the engine at host, written as
// unix:///path, tcp://host:port or http://host:port. An empty host means
// DefaultHost.
func NewClient(host string, opts ...Option) (*Client, error) {
	if host == "" {
		host = DefaultHost
	}

	proto, addr, err := parseHost(host)
	if err != nil {
		return nil, err
	}

	transport := cleanhttp.DefaultPooledTransport()
	if err := sockets.ConfigureTransport(transport, proto, addr); err != nil {
		return nil, fmt.Errorf("failed to configure transport for %q: %w", host, err)
	}

	c := &Client{
		proto:     proto,
		addr:      addr,
		host:      addr,
		transport: transport,
		logger:    hclog.NewNullLogger(),
	}
	if proto == "unix" {
		c.host = socketHost
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func parseHost(host string) (string, string, error) {
	proto, addr, ok := strings.Cut(host, "://")
	if !ok || addr == "" {
		return "", "", fmt.Errorf("invalid engine host %q: expected unix:///path or tcp://host:port", host)
	}

	switch proto {
	case "unix":
		return proto, addr, nil
	case "tcp", "http":
		addr, _, _ = strings.Cut(addr, "/")
		return "tcp", addr, nil
	default:
		return "", "", fmt.Errorf("unsupported engine host protocol %q in %q", proto, host)
	}
}

// Close releases idle pooled connections. Hijacked connections belong to
// their callers.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func (c *Client) url(path string, query url.Values) string {
	u := url.URL{
		Scheme:   "http",
		Host:     c.host,
		Path:     path,
		RawQuery: query.Encode(),
	}
	if c.version != "" {
		u.Path = "/v" + c.version + path
	}
	return u.String()
}

// Stream sends a request that asks the engine to upgrade the connection and
// returns the response with its connection still open. The response body is
// the raw connection: pass the response to Hijack or ToStreamingSocket. A
// non-success status is returned as a *StatusError.
//
// ctx only bounds the request and the response headers. Once Stream returns
// the connection is closed by closing the response body.
func (c *Client) Stream(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "tcp")

	c.logger.Debug("dialing for stream", "method", method, "path", path, "proto", c.proto, "addr", c.addr)

	conn, err := c.transport.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial engine at %s://%s: %w", c.proto, c.addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	resp, err := roundTrip(conn, req)
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusSwitchingProtocols, http.StatusOK:
	default:
		defer conn.Close()
		return nil, readStatusError(resp.StatusCode, resp.Body)
	}

	c.logger.Debug("stream established", "path", path, "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
	return resp, nil
}

func roundTrip(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("failed to send %s %s: %w", req.Method, req.URL.Path, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("failed to read response to %s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode == http.StatusSwitchingProtocols || resp.StatusCode == http.StatusOK {
		// Everything after the headers belongs to the stream, including
		// whatever the reader has already buffered.
		resp.Body = &hijackedConn{Conn: conn, r: br}
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body for %s %s: %w", method, path, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), r)
	if err != nil {
		return nil, fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// hijackedConn is a connection taken over after its response headers.
type hijackedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *hijackedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// CloseWrite half-closes the connection when the network supports it.
func (c *hijackedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
