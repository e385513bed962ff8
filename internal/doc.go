// Package internal contains shared types and utilities for contattach.
//
// It provides configuration parsing, diagnostic logging, session naming,
// cleanup orchestration and the Writer used for user-facing output.
package internal
