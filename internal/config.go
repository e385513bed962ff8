package internal

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	// DefaultStopTimeout is the timeout in seconds for gracefully stopping a container
	// before forcefully killing it.
	DefaultStopTimeout = 10

	// DefaultTTYRetries is the number of retry attempts for initial TTY resize operations.
	// The container may not be fully ready when we first try to resize.
	DefaultTTYRetries = 10

	// DefaultRetryDelay is the base delay between TTY resize retry attempts.
	// Each retry multiplies this by (retry+1): 10ms, 20ms, 30ms, etc.
	DefaultRetryDelay = 10 * time.Millisecond

	// DefaultImage is run when neither --image nor --dockerfile is given.
	DefaultImage = "alpine:latest"

	// BuiltImage tags the image built from --dockerfile when --image is not given.
	BuiltImage = "contattach:latest"

	// DefaultBufferSize bounds how many frames stdout may run ahead of stderr.
	DefaultBufferSize = 16

	// DefaultCapacity is the number of chunks each split channel holds.
	DefaultCapacity = 16
)

type Config struct {
	ImageName      ImageName
	DockerfilePath string
	WorkingDir     string
	Network        string
	StopTimeout    int
	TTYRetries     int
	RetryDelay     time.Duration

	// TTY allocates a terminal and binds it to the local one. It implies
	// Interactive.
	TTY bool
	// Interactive forwards local stdin to the container.
	Interactive bool
	// ExecContainer, when set, runs Args in that existing container
	// instead of creating one.
	ExecContainer string

	Args    Command
	Env     Environment
	Volumes []string

	Host       string
	APIVersion string

	BufferSize int
	Capacity   int
	// Encoding decodes container output to UTF-8. Nil passes bytes through.
	Encoding     encoding.Encoding
	EncodingName string

	LogLevel hclog.Level
}

type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type flagValues struct {
	image       string
	dockerfile  string
	workdir     string
	network     string
	tty         bool
	interactive bool
	exec        string
	env         stringSlice
	volumes     stringSlice
	host        string
	apiVersion  string
	bufferSize  int
	capacity    int
	encoding    string
	logLevel    string
}

func newFlagSet(v *flagValues, lookup map[string]string) *flag.FlagSet {
	fs := flag.NewFlagSet("contattach", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	logLevel, ok := lookup["CONTATTACH_LOG_LEVEL"]
	if !ok {
		logLevel = DefaultLogLevel
	}

	fs.StringVar(&v.image, "image", "", fmt.Sprintf("image to run (default %q, or %q with --dockerfile)", DefaultImage, BuiltImage))
	fs.StringVar(&v.dockerfile, "dockerfile", "", "build the image from this Dockerfile first")
	fs.StringVar(&v.workdir, "workdir", "", "working directory inside the container")
	fs.StringVar(&v.network, "network", "default", "connect the container to this network")
	fs.BoolVar(&v.tty, "tty", false, "allocate a terminal and attach the local one (implies --interactive)")
	fs.BoolVar(&v.interactive, "interactive", false, "forward stdin to the container")
	fs.StringVar(&v.exec, "exec", "", "run the command in this existing container")
	fs.Var(&v.env, "env", "environment variable KEY=VALUE (repeatable)")
	fs.Var(&v.volumes, "volume", "volume mount SRC:DST (repeatable)")
	fs.StringVar(&v.host, "host", lookup["DOCKER_HOST"], "engine address (default $DOCKER_HOST)")
	fs.StringVar(&v.apiVersion, "api-version", lookup["DOCKER_API_VERSION"], "engine API version for streaming requests (default $DOCKER_API_VERSION)")
	fs.IntVar(&v.bufferSize, "buffer-size", DefaultBufferSize, "frames stdout may run ahead of stderr")
	fs.IntVar(&v.capacity, "capacity", DefaultCapacity, "chunks held by each split channel")
	fs.StringVar(&v.encoding, "encoding", "", "decode container output from this encoding, e.g. latin1 or utf-16le")
	fs.StringVar(&v.logLevel, "log-level", logLevel, "diagnostic log level (default $CONTATTACH_LOG_LEVEL)")
	return fs
}

// ParseConfig parses command-line arguments and environment variables to construct
// the configuration for running a container. The arguments left after the flags
// are the command to execute. Returns flag.ErrHelp when help was requested.
func ParseConfig(args []string, environment []string) (Config, error) {
	lookup := make(map[string]string)
	for _, variable := range environment {
		key, value, ok := strings.Cut(variable, "=")
		if ok {
			lookup[key] = value
		}
	}

	var v flagValues
	fs := newFlagSet(&v, lookup)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("invalid arguments: %w\nRun 'contattach --help' for usage", err)
	}

	if v.exec != "" && fs.NArg() == 0 {
		return Config{}, errors.New("--exec requires a command\nUsage: contattach --exec CONTAINER COMMAND...")
	}
	if v.bufferSize < 0 || v.capacity < 0 {
		return Config{}, errors.New("--buffer-size and --capacity must not be negative")
	}

	level, err := ParseLogLevel(v.logLevel)
	if err != nil {
		return Config{}, err
	}

	var enc encoding.Encoding
	if v.encoding != "" {
		enc, err = htmlindex.Get(v.encoding)
		if err != nil {
			return Config{}, fmt.Errorf("unknown encoding %q: %w\nUse a WHATWG encoding label such as utf-8, latin1 or utf-16le", v.encoding, err)
		}
	}

	image := v.image
	if image == "" {
		image = DefaultImage
		if v.dockerfile != "" {
			image = BuiltImage
		}
	}

	var env Environment
	if v.tty {
		value, ok := lookup["TERM"]
		if !ok {
			value = "xterm-256color"
		}
		env = env.With("TERM", value)

		if value, ok := lookup["COLORTERM"]; ok {
			env = env.With("COLORTERM", value)
		}
	}
	env = append(env, v.env...)

	return Config{
		ImageName:      ImageName(image),
		DockerfilePath: v.dockerfile,
		WorkingDir:     v.workdir,
		Network:        v.network,
		StopTimeout:    DefaultStopTimeout,
		TTYRetries:     DefaultTTYRetries,
		RetryDelay:     DefaultRetryDelay,
		TTY:            v.tty,
		Interactive:    v.interactive || v.tty,
		ExecContainer:  v.exec,
		Args:           Command(fs.Args()),
		Env:            env,
		Volumes:        v.volumes,
		Host:           v.host,
		APIVersion:     v.apiVersion,
		BufferSize:     v.bufferSize,
		Capacity:       v.capacity,
		Encoding:       enc,
		EncodingName:   v.encoding,
		LogLevel:       level,
	}, nil
}

// Usage returns the command-line help text.
func Usage() string {
	var buf bytes.Buffer
	buf.WriteString("Usage: contattach [flags] COMMAND...\n")
	buf.WriteString("       contattach --exec CONTAINER [flags] COMMAND...\n\nFlags:\n")

	fs := newFlagSet(&flagValues{}, map[string]string{})
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	return buf.String()
}
