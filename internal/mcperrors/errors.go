// Package mcperrors defines the broker's error taxonomy: a small set of
// sentinel kinds that every component wraps its failures in, so callers at
// the broker tool boundary can classify failures without string matching.
package mcperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a broker error. See spec §7 for the propagation rules
// attached to each kind.
type Kind string

const (
	// KindConfiguration covers malformed JSON, unknown upstreams, a missing
	// ICA_HOME on a required write, and forbidden URL schemes.
	KindConfiguration Kind = "configuration"
	// KindAuth covers missing OAuth fields, state mismatches, and
	// provider-reported authorization errors.
	KindAuth Kind = "auth"
	// KindTimeout covers the PKCE redirect wait, device-code polling, and
	// upstream request timeouts.
	KindTimeout Kind = "timeout"
	// KindUpstream covers failures returned by an upstream child session.
	KindUpstream Kind = "upstream"
	// KindDependency covers an unavailable MCP client/server library.
	KindDependency Kind = "dependency"
)

// Error is a broker error tagged with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, op, format string, args ...any) error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Configuration wraps err as a KindConfiguration error.
func Configuration(op string, err error) error { return New(KindConfiguration, op, err) }

// Auth wraps err as a KindAuth error.
func Auth(op string, err error) error { return New(KindAuth, op, err) }

// Timeout wraps err as a KindTimeout error.
func Timeout(op string, err error) error { return New(KindTimeout, op, err) }

// Upstream wraps err as a KindUpstream error.
func Upstream(op string, err error) error { return New(KindUpstream, op, err) }

// Dependency wraps err as a KindDependency error.
func Dependency(op string, err error) error { return New(KindDependency, op, err) }
