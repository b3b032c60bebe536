package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ModuleName is the base name of the native engine library.
const ModuleName = "eduvpn_common"

// BundledDir is the directory, relative to the executable, searched when the
// library is not on the system search path.
const BundledDir = "lib"

// EnvLibraryPath names an explicit library file tried before any search.
const EnvLibraryPath = "EDUVPN_COMMON_LIB"

// OpenFunc opens a shared library by name or path and returns its handle.
type OpenFunc func(path string) (uintptr, error)

// LookupFunc resolves a symbol in an opened library.
type LookupFunc func(handle uintptr, name string) (uintptr, error)

// Attempt records one failed load attempt.
type Attempt struct {
	Path string
	Err  error
}

// LoadError is returned when the library could not be opened from any
// location. It is fatal: no operation can run without the library.
type LoadError struct {
	Filename string
	Attempts []Attempt
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to load %s", e.Filename)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Path, a.Err)
	}
	return b.String()
}

// Unwrap returns the error of every attempt.
func (e *LoadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// ErrNotBundled is recorded when the fallback file does not exist.
var ErrNotBundled = errors.New("library not present in bundled directory")

// Library is an opened shared library. It stays loaded for the lifetime of
// the process.
type Library struct {
	Path   string
	handle uintptr
	lookup LookupFunc
}

// NewLibrary wraps an already opened handle.
func NewLibrary(path string, handle uintptr, lookup LookupFunc) *Library {
	return &Library{Path: path, handle: handle, lookup: lookup}
}

// Lookup returns the address of the named symbol.
func (l *Library) Lookup(name string) (uintptr, error) {
	sym, err := l.lookup(l.handle, name)
	if err != nil {
		return 0, fmt.Errorf("symbol %s: %w", name, err)
	}
	if sym == 0 {
		return 0, fmt.Errorf("symbol %q not found in %s", name, l.Path)
	}
	return sym, nil
}

// Resolver finds and opens the native library.
type Resolver struct {
	// Module is the library base name, ModuleName when empty.
	Module string
	// Platform is the naming strategy, Current() when zero.
	Platform Platform
	// ExplicitPath, when set, is tried before the search path.
	ExplicitPath string
	// FallbackDir is searched after the system path. Defaults to
	// BundledDir next to the executable.
	FallbackDir string
	// Fs is used to check the fallback file exists. Defaults to the OS.
	Fs afero.Fs
	// Open and Lookup default to the platform dynamic loader.
	Open   OpenFunc
	Lookup LookupFunc
	Logger zerolog.Logger
}

// Filename returns the platform filename the resolver searches for.
func (r *Resolver) Filename() string {
	module := r.Module
	if module == "" {
		module = ModuleName
	}
	p := r.Platform
	if p == (Platform{}) {
		p = Current()
	}
	return p.Filename(module)
}

func (r *Resolver) fallbackDir() string {
	if r.FallbackDir != "" {
		return r.FallbackDir
	}
	exe, err := os.Executable()
	if err != nil {
		return BundledDir
	}
	return filepath.Join(filepath.Dir(exe), BundledDir)
}

// Load opens the library: explicit path (if any), then the bare filename on
// the system search path, then the bundled fallback directory.
func (r *Resolver) Load() (*Library, error) {
	open := r.Open
	if open == nil {
		open = dlopen
	}
	lookup := r.Lookup
	if lookup == nil {
		lookup = dlsym
	}
	fs := r.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	filename := r.Filename()
	loadErr := &LoadError{Filename: filename}

	try := func(path string) *Library {
		handle, err := open(path)
		if err != nil {
			r.Logger.Debug().Str("path", path).Err(err).Msg("library load attempt failed")
			loadErr.Attempts = append(loadErr.Attempts, Attempt{Path: path, Err: err})
			return nil
		}
		r.Logger.Debug().Str("path", path).Msg("library loaded")
		return NewLibrary(path, handle, lookup)
	}

	if r.ExplicitPath != "" {
		if lib := try(r.ExplicitPath); lib != nil {
			return lib, nil
		}
	}

	if lib := try(filename); lib != nil {
		return lib, nil
	}

	bundled := filepath.Join(r.fallbackDir(), filename)
	if abs, err := filepath.Abs(bundled); err == nil {
		bundled = abs
	}
	if ok, _ := afero.Exists(fs, bundled); !ok {
		loadErr.Attempts = append(loadErr.Attempts, Attempt{Path: bundled, Err: ErrNotBundled})
		return nil, loadErr
	}
	if lib := try(bundled); lib != nil {
		return lib, nil
	}
	return nil, loadErr
}
