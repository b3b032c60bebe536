package eduvpn

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	ErrAlreadyRegistered = errors.New("eduvpn: session already registered")
	ErrNotRegistered     = errors.New("eduvpn: session not registered")
	ErrClosed            = errors.New("eduvpn: client closed")
	ErrNilListener       = errors.New("eduvpn: nil listener")
)

// EngineError is an error reported by the engine as text. It is returned
// alongside whatever data the engine produced in the same call.
type EngineError struct {
	Op      string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// engineError returns nil for empty text.
func engineError(op, msg string) error {
	if msg == "" {
		return nil
	}
	return &EngineError{Op: op, Message: msg}
}
