// Package hijack takes over the connection beneath an engine API response.
//
// Attach and exec endpoints answer with a 101 upgrade, or a 200 the engine
// never finishes, and then speak the stream protocol on the same connection.
// Client issues those requests, Hijack extracts the connection and
// ToStreamingSocket classifies it into a stream.Socket.
package hijack
