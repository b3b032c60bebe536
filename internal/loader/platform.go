// Package loader locates and opens the native eduvpn_common shared library.
//
// The filename is computed from a per-platform naming strategy, then the
// library is opened from the system search path, falling back to a bundled
// directory next to the running executable.
package loader

import "runtime"

// Platform is the naming strategy for shared libraries on one operating system.
type Platform struct {
	Name   string
	Prefix string
	Suffix string
}

const (
	defaultPrefix = "lib"
	defaultSuffix = ".so"
)

var platformOverrides = map[string]Platform{
	"windows": {Name: "windows", Prefix: "", Suffix: ".dll"},
	"darwin":  {Name: "darwin", Prefix: defaultPrefix, Suffix: ".dylib"},
}

// PlatformFor returns the naming strategy for the given GOOS value.
// Unknown platforms use the "lib" prefix and ".so" suffix.
func PlatformFor(goos string) Platform {
	if p, ok := platformOverrides[goos]; ok {
		return p
	}
	return Platform{Name: goos, Prefix: defaultPrefix, Suffix: defaultSuffix}
}

// Current returns the naming strategy of the running platform.
func Current() Platform {
	return PlatformFor(runtime.GOOS)
}

// Filename returns the shared library filename for module on this platform.
func (p Platform) Filename(module string) string {
	return p.Prefix + module + p.Suffix
}
