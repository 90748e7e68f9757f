// Package errs defines the tagged error kinds used across the engine instead
// of exceptions-for-control-flow: every failure that crosses a component
// boundary carries a Kind the caller can switch on.
package errs

import "fmt"

// Kind tags an Error with the handling policy the caller should apply.
type Kind string

const (
	// NodeExecution means a strategy returned an error; subject to retry/fallback.
	NodeExecution Kind = "NODE_EXECUTION"
	// Timeout means a strategy exceeded its configured deadline; subject to retry/fallback.
	Timeout Kind = "TIMEOUT"
	// Validation means blueprint analysis failed (unknown node, unknown strategy, strict cycle).
	Validation Kind = "VALIDATION"
	// Coordination means the coordination store is unavailable or inconsistent.
	Coordination Kind = "COORDINATION"
	// BlueprintVersionMismatch means a job referenced a blueprint version the run didn't pin.
	BlueprintVersionMismatch Kind = "BLUEPRINT_VERSION_MISMATCH"
	// Fatal ends the run immediately: isFatal errors, missing blueprints, orchestrator panics.
	Fatal Kind = "FATAL"
)

// Error is the engine's tagged error type.
type Error struct {
	Kind    Kind
	Message string
	NodeID  string
	Cause   error
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewForNode(kind Kind, nodeID, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, NodeID: nodeID, Cause: cause}
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.NodeID, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.NodeID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsFatal reports whether this error should end the run immediately.
func (e *Error) IsFatal() bool {
	return e.Kind == Fatal || e.Kind == BlueprintVersionMismatch
}

// KindOf extracts the Kind from err, defaulting to NodeExecution for
// errors the engine didn't tag itself (user strategy functions commonly
// return plain errors).
func KindOf(err error) Kind {
	var fe *Error
	if As(err, &fe) {
		return fe.Kind
	}
	return NodeExecution
}

// As is a small local stand-in for errors.As, specialised to *Error: it
// walks the single Unwrap() error chain and does not descend into
// multi-error (Unwrap() []error) values.
func As(err error, target **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
