package internal

import "strings"

// SessionID names the container created for one run.
type SessionID string

// ImageName is the reference a container is created from, such as
// alpine:latest.
type ImageName string

// Command is the process argv run in a container or exec.
type Command []string

// Environment holds KEY=VALUE pairs. Later entries win when the engine
// applies them.
type Environment []string

// With returns e with key set to value appended.
func (e Environment) With(key, value string) Environment {
	return append(e, key+"="+value)
}

// Lookup returns the value the engine would apply for key.
func (e Environment) Lookup(key string) (string, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(e[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
