// Package stream implements the engine's attach/exec stream protocol.
//
// A hijacked connection carries one of two wire formats: raw, unframed bytes
// (TTY-attached processes) or multiplexed frames that tag every payload with
// the stdin, stdout or stderr stream it belongs to. The package provides the
// frame codec, a Socket type that fixes the format of a connection once, the
// Demux functions that drain a connection into sinks, and Fan and Pack, which
// split one multiplexed connection into three independent channels and
// combine three channels into one.
package stream
