package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Gaurav-Gosain/eduvpn/internal/discovery"
)

var errExit = errors.New("exit")

type shellCommand struct {
	name, args, desc string
	run              func(cmd *cobra.Command, args []string) error
}

func (a *app) shellCommands() []shellCommand {
	id := func() string { return a.cfg.Client.ID }
	getConfig := func(kind serverKind) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected a server url")
			}
			url := discovery.NormalizeURL(args[0])
			conf, configType, err := a.getConfig(cmd, kind, url)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, dimStyle.Render("# "+configType+" config for "+url))
			fmt.Fprintln(a.out, highlight(conf, configType))
			return nil
		}
	}
	printData := func(get func(string) (string, error), kind string) func(*cobra.Command, []string) error {
		return func(*cobra.Command, []string) error {
			data, err := get(id())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, highlight(data, kind))
			return nil
		}
	}

	return []shellCommand{
		{".orgs", "", "Print the organization list", printData(func(s string) (string, error) { return a.client.GetOrganizationsList(s) }, "json")},
		{".servers", "", "Print the server list", printData(func(s string) (string, error) { return a.client.GetServersList(s) }, "json")},
		{".institute", "<url>", "Get an Institute Access config", getConfig(kindInstitute)},
		{".secure", "<url>", "Get a Secure Internet config", getConfig(kindSecure)},
		{".custom", "<url>", "Get a custom server config", getConfig(kindCustom)},
		{".profile", "<id>", "Set the profile id", func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected a profile id")
			}
			return a.client.SetProfileID(id(), args[0])
		}},
		{".location", "<cc>", "Set the Secure Internet location", func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected a country code")
			}
			return a.client.SetSecureLocation(id(), args[0])
		}},
		{".identifier", "[value]", "Show or set the server identifier", func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.client.SetIdentifier(id(), args[0])
			}
			v, err := a.client.GetIdentifier(id())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, v)
			return nil
		}},
		{".connected", "", "Tell the engine the VPN is connected", func(*cobra.Command, []string) error { return a.client.SetConnected(id()) }},
		{".disconnected", "", "Tell the engine the VPN is disconnected", func(*cobra.Command, []string) error { return a.client.SetDisconnected(id()) }},
		{".search", "", "Move the session to server search", func(*cobra.Command, []string) error { return a.client.SetSearchServer(id()) }},
		{".cancel", "", "Cancel a pending OAuth flow", func(*cobra.Command, []string) error { return a.client.CancelOAuth(id()) }},
		{".help", "", "Show this help", func(*cobra.Command, []string) error { a.printShellHelp(); return nil }},
		{".exit", "", "Exit the shell", func(*cobra.Command, []string) error { return errExit }},
	}
}

func (a *app) printShellHelp() {
	fmt.Fprintln(a.out, logoStyle.Render("SHELL COMMANDS"))
	for _, c := range a.shellCommands() {
		fmt.Fprintf(a.out, "  %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-22s", strings.TrimSpace(c.name+" "+c.args))), dimStyle.Render(c.desc))
	}
}

// exec runs one shell line. It returns errExit when the shell should stop.
func (a *app) exec(cmd *cobra.Command, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(parts[0])
	if name == "exit" || name == "quit" || name == ".quit" || name == ".q" {
		return errExit
	}
	for _, c := range a.shellCommands() {
		if c.name == name {
			return c.run(cmd, parts[1:])
		}
	}
	return fmt.Errorf("unknown command %s, type .help", parts[0])
}

func (a *app) shellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.withSession(func(cmd *cobra.Command, _ []string) error {
		historyFile := ""
		if home, err := os.UserHomeDir(); err == nil {
			historyFile = filepath.Join(home, ".eduvpn_history")
		}

		completer := readline.NewPrefixCompleter()
		for _, c := range a.shellCommands() {
			completer.Children = append(completer.Children, readline.PcItem(c.name))
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:            promptStyle.Render("eduvpn") + dimStyle.Render(" > "),
			HistoryFile:       historyFile,
			HistoryLimit:      1000,
			AutoComplete:      completer,
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize readline: %w", err)
		}
		defer rl.Close()

		fmt.Fprintln(a.out, logoStyle.Render("eduvpn")+dimStyle.Render(" v"+version+" session "+a.cfg.Client.ID))
		fmt.Fprintln(a.out, dimStyle.Render("  Type ")+cmdStyle.Render(".help")+dimStyle.Render(" for commands"))

		for {
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					break
				}
				continue
			}
			if err := a.exec(cmd, line); err != nil {
				if errors.Is(err, errExit) {
					break
				}
				fmt.Fprintln(a.errOut, errorStyle.Render("Error:")+" "+err.Error())
			}
		}
		fmt.Fprintln(a.out, dimStyle.Render("Goodbye!"))
		return nil
	})
	return cmd
}
