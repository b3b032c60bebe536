package loader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		goos     string
		prefix   string
		suffix   string
		filename string
	}{
		{"windows", "", ".dll", "eduvpn_common.dll"},
		{"darwin", "lib", ".dylib", "libeduvpn_common.dylib"},
		{"linux", "lib", ".so", "libeduvpn_common.so"},
		{"freebsd", "lib", ".so", "libeduvpn_common.so"},
		{"plan9", "lib", ".so", "libeduvpn_common.so"},
	}

	for _, tt := range tests {
		p := PlatformFor(tt.goos)
		assert.Equal(t, tt.prefix, p.Prefix, "prefix for %s", tt.goos)
		assert.Equal(t, tt.suffix, p.Suffix, "suffix for %s", tt.goos)
		assert.Equal(t, tt.filename, p.Filename(ModuleName), "filename for %s", tt.goos)
	}
}

var errNoSuchFile = errors.New("no such file")

type fakeLoader struct {
	available map[string]uintptr
	tried     []string
}

func (f *fakeLoader) open(path string) (uintptr, error) {
	f.tried = append(f.tried, path)
	if h, ok := f.available[path]; ok {
		return h, nil
	}
	return 0, errNoSuchFile
}

func (f *fakeLoader) lookup(handle uintptr, name string) (uintptr, error) {
	if name == "Missing" {
		return 0, errors.New("undefined symbol")
	}
	return handle + 1, nil
}

func TestLoadSystemPathFirst(t *testing.T) {
	fl := &fakeLoader{available: map[string]uintptr{"libeduvpn_common.so": 100}}
	r := &Resolver{
		Platform:    PlatformFor("linux"),
		FallbackDir: "/opt/app/lib",
		Fs:          afero.NewMemMapFs(),
		Open:        fl.open,
		Lookup:      fl.lookup,
	}

	lib, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, "libeduvpn_common.so", lib.Path)
	assert.Equal(t, []string{"libeduvpn_common.so"}, fl.tried)

	sym, err := lib.Lookup("GetServersList")
	require.NoError(t, err)
	assert.Equal(t, uintptr(101), sym)

	_, err = lib.Lookup("Missing")
	assert.Error(t, err)
}

func TestLoadFallsBackToBundledDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir, err := filepath.Abs(filepath.Join("testdata", "lib"))
	require.NoError(t, err)
	bundled := filepath.Join(dir, "eduvpn_common.dll")
	require.NoError(t, afero.WriteFile(fs, bundled, []byte("MZ"), 0o644))

	fl := &fakeLoader{available: map[string]uintptr{bundled: 7}}
	r := &Resolver{
		Platform:    PlatformFor("windows"),
		FallbackDir: dir,
		Fs:          fs,
		Open:        fl.open,
		Lookup:      fl.lookup,
	}

	lib, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, bundled, lib.Path)
	assert.Equal(t, []string{"eduvpn_common.dll", bundled}, fl.tried)
}

func TestLoadExplicitPath(t *testing.T) {
	fl := &fakeLoader{available: map[string]uintptr{"/custom/libengine.so": 9}}
	r := &Resolver{
		Platform:     PlatformFor("linux"),
		ExplicitPath: "/custom/libengine.so",
		Fs:           afero.NewMemMapFs(),
		Open:         fl.open,
		Lookup:       fl.lookup,
	}

	lib, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, "/custom/libengine.so", lib.Path)
	assert.Len(t, fl.tried, 1)
}

func TestLoadErrorWhenNothingFound(t *testing.T) {
	fl := &fakeLoader{}
	r := &Resolver{
		Platform:    PlatformFor("darwin"),
		FallbackDir: "/nonexistent/lib",
		Fs:          afero.NewMemMapFs(),
		Open:        fl.open,
		Lookup:      fl.lookup,
	}

	lib, err := r.Load()
	require.Error(t, err)
	assert.Nil(t, lib)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "libeduvpn_common.dylib", loadErr.Filename)
	require.Len(t, loadErr.Attempts, 2)
	assert.ErrorIs(t, err, errNoSuchFile)
	assert.ErrorIs(t, err, ErrNotBundled)
	assert.Contains(t, err.Error(), "libeduvpn_common.dylib")

	// The fallback is not opened when the file is absent.
	assert.Equal(t, []string{"libeduvpn_common.dylib"}, fl.tried)
}

func TestLoadErrorWhenBundledOpenFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	bundled := filepath.Join("/opt/app/lib", "libeduvpn_common.so")
	require.NoError(t, afero.WriteFile(fs, bundled, []byte{0x7f, 'E', 'L', 'F'}, 0o644))

	fl := &fakeLoader{}
	r := &Resolver{
		Platform:    PlatformFor("linux"),
		FallbackDir: "/opt/app/lib",
		Fs:          fs,
		Open:        fl.open,
		Lookup:      fl.lookup,
	}

	_, err := r.Load()
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Len(t, loadErr.Attempts, 2)
	assert.Equal(t, bundled, loadErr.Attempts[1].Path)
}

func TestResolverFilenameDefaults(t *testing.T) {
	r := &Resolver{}
	assert.Equal(t, Current().Filename(ModuleName), r.Filename())

	r = &Resolver{Module: "other", Platform: PlatformFor("windows")}
	assert.Equal(t, "other.dll", r.Filename())
}
