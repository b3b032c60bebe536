// Package bridge provides low-level bindings to the native eduvpn_common
// engine.
//
// It owns the signature table, argument encoding, result decoding and the
// ownership discipline for strings the engine allocates: every non-null
// pointer the engine returns is copied and handed back to FreeString exactly
// once, and raw pointers never leave this package.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Options configures a Bridge.
type Options struct {
	Logger zerolog.Logger
	// NewCallback converts a trampoline into a native function pointer.
	// Defaults to purego.NewCallback.
	NewCallback CallbackFactory
	// Dispatch receives every state change event with the session id the
	// trampoline was created for.
	Dispatch func(sessionID string, ev Event)
}

// Bridge calls into one bound copy of the native engine.
type Bridge struct {
	natives     Natives
	free        FreeFunc
	logger      zerolog.Logger
	newCallback CallbackFactory
	dispatch    func(sessionID string, ev Event)

	trampolines  map[string]uintptr
	trampolineMu sync.Mutex

	decodeFailures atomic.Uint64
}

// New creates a Bridge over natives after checking every operation in the
// signature table has an entry point of the right type.
func New(natives Natives, opts Options) (*Bridge, error) {
	var missing []error
	for _, op := range Operations {
		fn, ok := natives[op.Symbol]
		if !ok {
			missing = append(missing, fmt.Errorf("%s: missing entry point %s", op.Name, op.Symbol))
			continue
		}
		if !matches(op, fn) {
			missing = append(missing, fmt.Errorf("%s: entry point %s has type %T", op.Name, op.Symbol, fn))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("invalid native table: %w", errors.Join(missing...))
	}

	b := &Bridge{
		natives:     natives,
		free:        natives["FreeString"].(FreeFunc),
		logger:      opts.Logger,
		newCallback: opts.NewCallback,
		dispatch:    opts.Dispatch,
		trampolines: make(map[string]uintptr),
	}
	if b.newCallback == nil {
		b.newCallback = NativeCallback
	}
	if b.dispatch == nil {
		b.dispatch = func(string, Event) {}
	}
	return b, nil
}
