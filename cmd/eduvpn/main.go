// Command eduvpn obtains VPN configurations through the eduvpn_common
// engine: discovery listing, Institute Access, Secure Internet and custom
// server configs, and an interactive shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Gaurav-Gosain/eduvpn"
	"github.com/Gaurav-Gosain/eduvpn/internal/config"
	"github.com/Gaurav-Gosain/eduvpn/internal/loader"
	"github.com/Gaurav-Gosain/eduvpn/internal/logging"
)

const version = "0.1.0"

var colorEnabled = true

// app holds what every command needs. client is set between connect and
// disconnect.
type app struct {
	fs     afero.Fs
	cfg    *config.Config
	source string
	logger zerolog.Logger
	out    io.Writer
	errOut io.Writer

	client  *eduvpn.Client
	open    func(cfg *config.Config, logger zerolog.Logger) (*eduvpn.Client, error)
	chooser chooser
	openURL func(url string) error

	configFile  string
	portalLogin string
	verbose     bool
	noColor     bool
}

func newApp() *app {
	return &app{
		fs:      afero.NewOsFs(),
		logger:  zerolog.Nop(),
		out:     os.Stdout,
		errOut:  os.Stderr,
		open:    openClient,
		openURL: openURL,
	}
}

func openClient(cfg *config.Config, logger zerolog.Logger) (*eduvpn.Client, error) {
	opts := []eduvpn.Option{
		eduvpn.WithLogger(logger),
		eduvpn.WithLibraryName(cfg.Library.Name),
	}
	if cfg.Library.Path != "" {
		opts = append(opts, eduvpn.WithLibraryPath(cfg.Library.Path))
	}
	if cfg.Library.Dir != "" {
		opts = append(opts, eduvpn.WithLibraryDir(cfg.Library.Dir))
	}
	return eduvpn.Open(opts...)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp()
	root := a.rootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" "+err.Error())
		return 1
	}
	return 0
}

// setup loads the configuration once flags are parsed.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	l := &config.Loader{
		Fs:    a.fs,
		File:  a.configFile,
		Paths: config.DefaultPaths(),
		Flags: cmd.Root().PersistentFlags(),
	}
	cfg, source, err := l.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.source = source
	a.logger = logging.New(cfg.Log.Level, a.errOut)

	colorEnabled = !a.noColor
	initSyntaxHighlighter()
	if a.chooser == nil {
		a.chooser = &readlineChooser{out: a.errOut}
	}

	a.logger.Debug().Str("config", source).Str("client", cfg.Client.ID).Msg("configuration loaded")
	return nil
}

// connect opens the engine and registers the configured session with the
// app as its listener.
func (a *app) connect() error {
	client, err := a.open(a.cfg, a.logger)
	if err != nil {
		var loadErr *eduvpn.LoadError
		if errors.As(err, &loadErr) {
			return fmt.Errorf("%w (set %s or --library to the engine library)", err, loader.EnvLibraryPath)
		}
		return err
	}
	a.client = client
	if err := client.Register(a.cfg.Client.ID, a.cfg.Client.ConfigDir, a, a.cfg.Client.Debug); err != nil {
		client.Close()
		a.client = nil
		return fmt.Errorf("failed to register %s: %w", a.cfg.Client.ID, err)
	}
	return nil
}

func (a *app) disconnect() {
	if a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("deregister failed")
	}
	if n := a.client.DecodeFailures(); n > 0 {
		a.logger.Warn().Uint64("count", n).Msg("engine strings dropped as invalid UTF-8")
	}
	a.client = nil
}

// withSession runs fn between connect and disconnect.
func (a *app) withSession(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.connect(); err != nil {
			return err
		}
		defer a.disconnect()
		return fn(cmd, args)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eduvpn",
		Short:         "eduVPN and Let's Connect! command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default $XDG_CONFIG_HOME/eduvpn/config.yaml)")
	flags.String("library", "", "path to the eduvpn_common library")
	flags.String("library-dir", "", "fallback directory searched for the library")
	flags.String("client-id", config.DefaultClientID, "client id registered with the engine")
	flags.String("config-dir", "configs", "directory the engine stores its state in")
	flags.Bool("debug", false, "enable engine debug logging")
	flags.Bool("tcp", false, "prefer TCP for OpenVPN configs")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.portalLogin, "portal-login", "", "approve OAuth with this portal-login command instead of a browser")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "print every state transition")
	flags.BoolVar(&a.noColor, "no-color", false, "disable syntax highlighting")

	root.AddCommand(
		a.configCmd(kindInstitute),
		a.configCmd(kindSecure),
		a.configCmd(kindCustom),
		a.secureAllCmd(),
		a.orgsCmd(),
		a.serversCmd(),
		a.identifierCmd(),
		a.notifyCmd("connected", "Tell the engine the VPN is connected", func(c *eduvpn.Client, id string) error { return c.SetConnected(id) }),
		a.notifyCmd("disconnected", "Tell the engine the VPN is disconnected", func(c *eduvpn.Client, id string) error { return c.SetDisconnected(id) }),
		a.notifyCmd("search-server", "Move the session to server search", func(c *eduvpn.Client, id string) error { return c.SetSearchServer(id) }),
		a.shellCmd(),
		a.settingsCmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, logoStyle.Render("eduvpn")+dimStyle.Render(" v"+version))
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("Go %s, %s/%s, library %s", runtime.Version(), runtime.GOOS, runtime.GOARCH, loader.Current().Filename(loader.ModuleName))))
		},
	}
}
