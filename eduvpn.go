// Package eduvpn provides Go bindings for the eduvpn_common native engine.
//
// The engine is a shared library exposing a small C ABI: discovery,
// OAuth-driven VPN configuration retrieval and a state change callback.
// This package loads the library with purego (no cgo), marshals every call,
// copies and releases every string the engine allocates, and turns the
// engine's callback into StateChangeEvent values delivered to a listener
// registered per session.
//
// Basic usage:
//
//	client, err := eduvpn.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Register("org.eduvpn.app.linux", "configs",
//	    eduvpn.ListenerFunc(func(ev eduvpn.StateChangeEvent) {
//	        fmt.Println(ev.OldState, "->", ev.NewState)
//	    }), false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	config, configType, err := client.GetConfigInstituteAccess(
//	    "org.eduvpn.app.linux", "https://vpn.example.edu/", false)
//
// Engine errors are text that travels next to the data. Methods return the
// data they received together with an *EngineError, so callers can inspect
// both.
package eduvpn

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Gaurav-Gosain/eduvpn/internal/bridge"
	"github.com/Gaurav-Gosain/eduvpn/internal/loader"
)

// Client is a handle on one bound copy of the native engine. It is safe for
// concurrent use; calls are passed straight through to the engine, which
// serialises internally.
type Client struct {
	bridge *bridge.Bridge
	logger zerolog.Logger
	path   string

	mu        sync.Mutex
	listeners map[string]*registration
	closed    atomic.Bool
}

type options struct {
	logger      zerolog.Logger
	module      string
	path        string
	dir         string
	natives     bridge.Natives
	newCallback bridge.CallbackFactory
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used for binding, registration and decode
// warnings. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLibraryName overrides the library base name (eduvpn_common).
func WithLibraryName(module string) Option {
	return func(o *options) { o.module = module }
}

// WithLibraryPath names an explicit library file tried before the system
// search path. It takes precedence over EDUVPN_COMMON_LIB.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithLibraryDir overrides the bundled fallback directory, lib/ next to the
// executable by default.
func WithLibraryDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEngine skips loading and binds the client to natives directly, using
// newCallback to create callback pointers. It is meant for in-process test
// engines.
func WithEngine(natives bridge.Natives, newCallback bridge.CallbackFactory) Option {
	return func(o *options) {
		o.natives = natives
		o.newCallback = newCallback
	}
}

// LoadError is returned by Open when the native library cannot be found.
type LoadError = loader.LoadError

// Open loads the native engine and binds every entry point. A *LoadError is
// returned when the library is not found; no operation is usable then.
func Open(opts ...Option) (*Client, error) {
	o := options{
		logger: zerolog.Nop(),
		module: loader.ModuleName,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		logger:    o.logger,
		listeners: make(map[string]*registration),
	}

	natives := o.natives
	if natives == nil {
		path := o.path
		if path == "" {
			path = os.Getenv(loader.EnvLibraryPath)
		}
		r := &loader.Resolver{
			Module:       o.module,
			ExplicitPath: path,
			FallbackDir:  o.dir,
			Logger:       o.logger,
		}
		lib, err := r.Load()
		if err != nil {
			return nil, err
		}
		natives, err = bridge.Bind(lib)
		if err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", lib.Path, err)
		}
		c.path = lib.Path
	}

	b, err := bridge.New(natives, bridge.Options{
		Logger:      o.logger,
		NewCallback: o.newCallback,
		Dispatch:    c.dispatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize eduvpn bridge: %w", err)
	}
	c.bridge = b

	c.logger.Debug().Str("library", c.path).Msg("engine bound")
	return c, nil
}

// LibraryPath returns the path the native library was loaded from, or "" for
// an engine supplied with WithEngine.
func (c *Client) LibraryPath() string {
	return c.path
}

// DecodeFailures returns how many engine strings were dropped because they
// were not valid UTF-8.
func (c *Client) DecodeFailures() uint64 {
	return c.bridge.DecodeFailures()
}

// getGoroutineID parses the current goroutine's id from the header line of
// its stack trace.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:\n..."
	var id uint64
	for i := len("goroutine "); i < n && buf[i] != ' '; i++ {
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
