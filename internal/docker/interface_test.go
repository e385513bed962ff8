package docker_test

import (
	"github.com/moby/moby/client"
	"github.com/ryanmoran/contattach/internal/docker"
	"github.com/ryanmoran/contattach/internal/hijack"
)

// Compile-time check that *client.Client implements DockerClient interface
var _ docker.DockerClient = (*client.Client)(nil)

// Compile-time check that *hijack.Client implements Streamer interface
var _ docker.Streamer = (*hijack.Client)(nil)
