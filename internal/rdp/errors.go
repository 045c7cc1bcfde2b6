package rdp

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned by any pending or future request once the
// Connection has been torn down.
var ErrDisconnected = errors.New("rdp: connection disconnected")

// ActorErrorKind classifies a wire-level error response.
type ActorErrorKind string

const (
	ErrWrongState         ActorErrorKind = "wrongState"
	ErrNoScript           ActorErrorKind = "noScript"
	ErrNoCodeAtLineColumn ActorErrorKind = "noCodeAtLineColumn"
	ErrUnknownMethod      ActorErrorKind = "unknownMethod"
	ErrUnknown            ActorErrorKind = "unknown"
)

// ActorError wraps an `error`/`message` pair returned by an actor in place
// of a successful response.
type ActorError struct {
	Actor   string
	Kind    ActorErrorKind
	Message string
}

func (e *ActorError) Error() string {
	return fmt.Sprintf("rdp: actor %s: %s: %s", e.Actor, e.Kind, e.Message)
}

// Benign reports whether this error is expected noise rather than a real
// failure — spec.md §7: "wrongState during pause/resume is benign and
// ignored."
func (e *ActorError) Benign() bool {
	return e.Kind == ErrWrongState
}

func classifyKind(s string) ActorErrorKind {
	switch s {
	case string(ErrWrongState), string(ErrNoScript), string(ErrNoCodeAtLineColumn), string(ErrUnknownMethod):
		return ActorErrorKind(s)
	default:
		return ErrUnknown
	}
}

// Unsupported signals that the connected engine's traits don't meet the
// bridge's minimum requirements.
type Unsupported struct {
	Reason string
}

func (e *Unsupported) Error() string { return "rdp: unsupported engine: " + e.Reason }
