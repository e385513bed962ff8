// Package docker drives containers for contattach.
//
// Client wraps the engine's lifecycle API and a Streamer for the hijacked
// endpoints. Container attaches to a running process in three shapes:
// copied into local streams (AttachStreams), split into independent
// channels (AttachChannels), or bound to the local terminal
// (AttachTerminal). Exec runs a one-off command and collects its output.
package docker
