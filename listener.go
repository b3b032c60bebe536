package eduvpn

import (
	"errors"
	"fmt"

	"github.com/Gaurav-Gosain/eduvpn/internal/bridge"
)

// StateChangeEvent is one state transition pushed by the engine. All four
// fields are always present; absent values are "".
type StateChangeEvent = bridge.Event

// StateChangeListener receives state transitions for one session. It is
// called on engine threads, possibly concurrently with calls made by the
// application, and must synchronise its own state.
type StateChangeListener interface {
	OnStateChange(ev StateChangeEvent)
}

// ListenerFunc adapts a function to StateChangeListener.
type ListenerFunc func(ev StateChangeEvent)

// OnStateChange calls f(ev).
func (f ListenerFunc) OnStateChange(ev StateChangeEvent) { f(ev) }

// registration is the live entry for one session. active counts running
// listener invocations; callers maps goroutine ids to invocations running on
// them.
type registration struct {
	listener StateChangeListener
	active   int
	callers  map[uint64]int
	// drained is closed once active drops to keep.
	drained chan struct{}
	keep    int
	// pending is set while the native Register call is running. A
	// Deregister in that window sets cancelled instead of calling the
	// engine, and Register rolls the engine registration back.
	pending   bool
	cancelled bool
}

// detach marks reg as leaving and returns a channel to wait on while
// invocations on goroutines other than gid are still running. c.mu must be
// held.
func (reg *registration) detach(gid uint64) chan struct{} {
	own := reg.callers[gid]
	if reg.active <= own {
		return nil
	}
	reg.drained = make(chan struct{})
	reg.keep = own
	return reg.drained
}

// Register registers listener for sessionID and registers the session with
// the engine, using configDir for its persistent state. The listener receives
// events from the moment this call starts until Deregister returns.
//
// A Deregister or Close that runs while the engine is still registering
// cancels the registration: the engine registration is undone and Register
// returns ErrNotRegistered or ErrClosed.
func (c *Client) Register(sessionID, configDir string, listener StateChangeListener, debug bool) error {
	if listener == nil {
		return ErrNilListener
	}

	reg := &registration{listener: listener, callers: make(map[uint64]int), pending: true}
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.listeners[sessionID]; ok {
		c.mu.Unlock()
		return ErrAlreadyRegistered
	}
	c.listeners[sessionID] = reg
	c.mu.Unlock()

	errText, err := c.bridge.CallError(bridge.OpRegister, sessionID, configDir, c.bridge.Trampoline(sessionID), boolFlag(debug, flagDebug))
	if err == nil {
		err = engineError(bridge.OpRegister, errText)
	}

	c.mu.Lock()
	reg.pending = false
	if err != nil {
		if c.listeners[sessionID] == reg {
			delete(c.listeners, sessionID)
		}
		c.mu.Unlock()
		return err
	}
	if reg.cancelled || c.closed.Load() {
		if c.listeners[sessionID] == reg {
			delete(c.listeners, sessionID)
		}
		closed := c.closed.Load()
		c.mu.Unlock()
		return c.rollback(sessionID, closed)
	}
	c.mu.Unlock()

	c.logger.Debug().Str("session", sessionID).Str("config", configDir).Bool("debug", debug).Msg("registered")
	return nil
}

// rollback undoes an engine registration that was cancelled while it ran.
func (c *Client) rollback(sessionID string, closed bool) error {
	errText, err := c.bridge.CallError(bridge.OpDeregister, sessionID)
	if err == nil {
		err = engineError(bridge.OpDeregister, errText)
	}
	if err != nil {
		c.logger.Warn().Str("session", sessionID).Err(err).Msg("rolling back cancelled registration failed")
	} else {
		c.logger.Debug().Str("session", sessionID).Msg("cancelled registration rolled back")
	}
	if closed {
		return ErrClosed
	}
	return fmt.Errorf("%w: deregistered while registering", ErrNotRegistered)
}

// Deregister deregisters sessionID from the engine and drops its listener.
// It returns once no invocation of the listener is running, except one on
// the calling goroutine, so a listener may deregister its own session.
//
// The listener is dropped even when the engine reports an error.
func (c *Client) Deregister(sessionID string) error {
	gid := getGoroutineID()

	c.mu.Lock()
	reg, ok := c.listeners[sessionID]
	if !ok {
		c.mu.Unlock()
		return ErrNotRegistered
	}
	if reg.pending {
		// The engine is still registering; Register undoes it.
		reg.cancelled = true
		delete(c.listeners, sessionID)
		wait := reg.detach(gid)
		c.mu.Unlock()
		if wait != nil {
			<-wait
		}
		c.logger.Debug().Str("session", sessionID).Msg("registration cancelled")
		return nil
	}
	c.mu.Unlock()

	errText, callErr := c.bridge.CallError(bridge.OpDeregister, sessionID)

	c.mu.Lock()
	if c.listeners[sessionID] != reg {
		// Lost a race with another Deregister.
		c.mu.Unlock()
		return ErrNotRegistered
	}
	delete(c.listeners, sessionID)
	wait := reg.detach(gid)
	c.mu.Unlock()

	if wait != nil {
		c.logger.Debug().Str("session", sessionID).Msg("waiting for in-flight state change")
		<-wait
	}

	c.logger.Debug().Str("session", sessionID).Msg("deregistered")
	if callErr != nil {
		return callErr
	}
	return engineError(bridge.OpDeregister, errText)
}

// Close deregisters every remaining session. Further calls return
// ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed.Swap(true) {
		c.mu.Unlock()
		return nil
	}
	ids := make([]string, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := c.Deregister(id); err != nil && !errors.Is(err, ErrNotRegistered) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registered reports whether sessionID has a live listener.
func (c *Client) Registered(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.listeners[sessionID]
	return ok
}

// dispatch is called by the session trampolines on engine threads.
func (c *Client) dispatch(sessionID string, ev StateChangeEvent) {
	gid := getGoroutineID()

	c.mu.Lock()
	reg, ok := c.listeners[sessionID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug().
			Str("session", sessionID).
			Str("new_state", ev.NewState).
			Msg("dropping state change for unregistered session")
		return
	}
	reg.active++
	reg.callers[gid]++
	listener := reg.listener
	c.mu.Unlock()

	defer c.leave(reg, gid)
	listener.OnStateChange(ev)
}

func (c *Client) leave(reg *registration, gid uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg.active--
	if reg.callers[gid]--; reg.callers[gid] == 0 {
		delete(reg.callers, gid)
	}
	if reg.drained != nil && reg.active <= reg.keep {
		close(reg.drained)
		reg.drained = nil
	}
}
