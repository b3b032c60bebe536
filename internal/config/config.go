// Package config loads the command configuration.
//
// Values are layered, later layers winning: built-in defaults, the YAML
// config file, command line flags, then EDUVPN_ environment variables
// (EDUVPN_CLIENT_ID sets client.id, EDUVPN_LOG_LEVEL sets log.level).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Gaurav-Gosain/eduvpn/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EDUVPN_"

// DefaultClientID is the client id registered with the engine.
const DefaultClientID = "org.eduvpn.app.linux"

// Config is the effective command configuration.
type Config struct {
	Library LibraryConfig `koanf:"library" yaml:"library"`
	Client  ClientConfig  `koanf:"client" yaml:"client"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
}

// LibraryConfig locates the native engine library.
type LibraryConfig struct {
	// Name is the library base name without platform prefix or suffix.
	Name string `koanf:"name" yaml:"name"`
	// Path is an explicit library file tried first.
	Path string `koanf:"path" yaml:"path,omitempty"`
	// Dir replaces the bundled lib/ fallback directory.
	Dir string `koanf:"dir" yaml:"dir,omitempty"`
}

// ClientConfig is the session registered with the engine.
type ClientConfig struct {
	ID        string `koanf:"id" yaml:"id"`
	ConfigDir string `koanf:"config_dir" yaml:"config_dir"`
	Debug     bool   `koanf:"debug" yaml:"debug"`
	PreferTCP bool   `koanf:"prefer_tcp" yaml:"prefer_tcp"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
}

// Defaults returns the built-in values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"library.name":      "eduvpn_common",
		"library.path":      "",
		"library.dir":       "",
		"client.id":         DefaultClientID,
		"client.config_dir": "configs",
		"client.debug":      false,
		"client.prefer_tcp": false,
		"log.level":         "info",
	}
}

// DefaultPaths returns the config files probed when none is given.
func DefaultPaths() []string {
	paths := []string{"eduvpn.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append([]string{filepath.Join(dir, "eduvpn", "config.yaml")}, paths...)
	}
	return paths
}

// Loader reads the layered configuration.
type Loader struct {
	Fs afero.Fs
	// File, when set, must exist and is the only file read.
	File string
	// Paths are probed in order when File is empty; the first existing one
	// is read.
	Paths []string
	Flags *pflag.FlagSet
}

// Load reads and validates the configuration. The returned string is the
// file that was read, or "".
func (l *Loader) Load() (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("error loading defaults: %w", err)
	}

	source, err := l.loadFile(k)
	if err != nil {
		return nil, "", err
	}

	if l.Flags != nil {
		if err := k.Load(posflag.ProviderWithValue(l.Flags, ".", k, MapFlagToConfigFunc()), nil); err != nil {
			return nil, "", fmt.Errorf("error loading flags: %w", err)
		}
	}

	envOpts := env.Provider(EnvPrefix, ".", func(s string) string {
		// The first underscore separates the section from the key.
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	})
	if err := k.Load(envOpts, nil); err != nil {
		return nil, "", fmt.Errorf("error loading env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, source, err
	}
	return &cfg, source, nil
}

func (l *Loader) loadFile(k *koanf.Koanf) (string, error) {
	fs := l.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	candidates := l.Paths
	if l.File != "" {
		if ok, _ := afero.Exists(fs, l.File); !ok {
			return "", fmt.Errorf("config file %s does not exist", l.File)
		}
		candidates = []string{l.File}
	}

	for _, p := range candidates {
		if ok, _ := afero.Exists(fs, p); !ok {
			continue
		}
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return "", fmt.Errorf("error reading config %s: %w", p, err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return "", fmt.Errorf("error parsing config %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

// MapFlagToConfigFunc maps command line flag names to config keys.
func MapFlagToConfigFunc() func(key string, value string) (string, interface{}) {
	return func(key string, value string) (string, interface{}) {
		switch key {
		case "library":
			return "library.path", value
		case "library-dir":
			return "library.dir", value
		case "client-id":
			return "client.id", value
		case "config-dir":
			return "client.config_dir", value
		case "debug":
			return "client.debug", value
		case "tcp":
			return "client.prefer_tcp", value
		case "log-level":
			return "log.level", value
		default:
			return key, value
		}
	}
}

// Validate checks the values the commands cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Client.ID) == "" {
		errs = append(errs, errors.New("client.id must not be empty"))
	}
	if strings.TrimSpace(c.Client.ConfigDir) == "" {
		errs = append(errs, errors.New("client.config_dir must not be empty"))
	}
	if strings.TrimSpace(c.Library.Name) == "" && c.Library.Path == "" {
		errs = append(errs, errors.New("library.name or library.path must be set"))
	}
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(fs afero.Fs, path string, cfg *Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}
