package bridge

import (
	"github.com/ebitengine/purego"
)

// Event is one state transition reported by the engine.
type Event struct {
	OldState string
	NewState string
	Data     string
	Error    string
}

// TrampolineFunc is the Go side of the native callback signature
// void (*)(const char*, const char*, const char*, const char*).
// The uintptr result satisfies platforms that require one; the engine
// ignores it.
type TrampolineFunc func(oldState, newState, data, errText uintptr) uintptr

// CallbackFactory converts a trampoline into a native function pointer.
type CallbackFactory func(fn TrampolineFunc) uintptr

// NativeCallback creates a native function pointer with purego. Pointers
// created this way are never released, so trampolines are cached per
// session id.
func NativeCallback(fn TrampolineFunc) uintptr {
	return purego.NewCallback(fn)
}

// Trampoline returns the native callback pointer for sessionID, creating it
// on first use. Invocations are forwarded to the dispatcher with the session
// id; the trampoline holds no reference to any listener.
func (b *Bridge) Trampoline(sessionID string) Callback {
	b.trampolineMu.Lock()
	defer b.trampolineMu.Unlock()

	if ptr, ok := b.trampolines[sessionID]; ok {
		return Callback(ptr)
	}
	ptr := b.newCallback(func(oldState, newState, data, errText uintptr) uintptr {
		b.deliver(sessionID, oldState, newState, data, errText)
		return 0
	})
	b.trampolines[sessionID] = ptr
	return Callback(ptr)
}

// deliver copies the four borrowed strings and dispatches the event. It
// never lets a panic unwind into native frames.
func (b *Bridge) deliver(sessionID string, oldState, newState, data, errText uintptr) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("session", sessionID).
				Interface("panic", r).
				Msg("state change dispatch panicked")
		}
	}()

	ev := Event{
		OldState: b.borrow("old_state", oldState),
		NewState: b.borrow("new_state", newState),
		Data:     b.borrow("data", data),
		Error:    b.borrow("error", errText),
	}
	b.dispatch(sessionID, ev)
}
