package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Gaurav-Gosain/eduvpn"
	"github.com/Gaurav-Gosain/eduvpn/internal/config"
	"github.com/Gaurav-Gosain/eduvpn/internal/discovery"
)

type serverKind string

const (
	kindInstitute serverKind = "institute"
	kindSecure    serverKind = "secure"
	kindCustom    serverKind = "custom"
)

// getConfig runs the get-config operation for kind, cancelling the OAuth
// flow when the command context ends.
func (a *app) getConfig(cmd *cobra.Command, kind serverKind, url string) (string, string, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stop := a.client.CancelOnDone(ctx, a.cfg.Client.ID)
	defer stop()

	id, tcp := a.cfg.Client.ID, a.cfg.Client.PreferTCP
	switch kind {
	case kindInstitute:
		return a.client.GetConfigInstituteAccess(id, url, tcp)
	case kindSecure:
		return a.client.GetConfigSecureInternet(id, url, tcp)
	default:
		return a.client.GetConfigCustomServer(id, url, tcp)
	}
}

func configExt(configType string) string {
	switch strings.ToLower(configType) {
	case "wireguard":
		return ".conf"
	case "openvpn":
		return ".ovpn"
	default:
		return ""
	}
}

func (a *app) configCmd(kind serverKind) *cobra.Command {
	short := map[serverKind]string{
		kindInstitute: "Get a config for an Institute Access server",
		kindSecure:    "Get a config for a Secure Internet server",
		kindCustom:    "Get a config for a server that is not in discovery",
	}[kind]

	var output string
	cmd := &cobra.Command{
		Use:   string(kind) + " <url>",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.withSession(func(cmd *cobra.Command, args []string) error {
		url := discovery.NormalizeURL(args[0])
		conf, configType, err := a.getConfig(cmd, kind, url)
		if err != nil {
			return fmt.Errorf("failed to get config for %s: %w", url, err)
		}

		if output != "" {
			if err := afero.WriteFile(a.fs, output, []byte(conf), 0o600); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("✓")+" stored "+configType+" config in "+output)
			return nil
		}
		fmt.Fprintln(a.errOut, dimStyle.Render("# "+configType+" config for "+url))
		fmt.Fprintln(a.out, highlight(conf, configType))
		return nil
	})
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the config to this file")
	return cmd
}

func (a *app) secureAllCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "secure-all <home-url>",
		Short: "Store a config for every Secure Internet server",
		Long: "Obtains a config for the home server first, then for every other Secure\n" +
			"Internet server in discovery, and stores each in the target directory.",
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = a.withSession(func(cmd *cobra.Command, args []string) error {
		home := discovery.NormalizeURL(args[0])

		list, err := a.client.GetServersList(a.cfg.Client.ID)
		if err != nil {
			return fmt.Errorf("cannot obtain servers: %w", err)
		}
		servers, err := discovery.ParseServers(list)
		if err != nil {
			return fmt.Errorf("cannot parse secure internet servers: %w", err)
		}
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		urls := []string{home}
		for _, u := range discovery.SecureInternetServers(servers) {
			if !strings.Contains(u, home) {
				urls = append(urls, u)
			}
		}

		var failed []error
		for _, u := range urls {
			if err := a.storeConfig(cmd, u, dir); err != nil {
				fmt.Fprintln(a.errOut, errorStyle.Render("✗")+" "+err.Error())
				failed = append(failed, err)
			}
		}
		fmt.Fprintln(a.out, "Done storing all configs in directory: "+dir)
		if len(failed) == len(urls) {
			return errors.Join(failed...)
		}
		return nil
	})
	cmd.Flags().StringVarP(&dir, "dir", "d", "certs", "directory to store the configs in")
	return cmd
}

func (a *app) storeConfig(cmd *cobra.Command, url, dir string) error {
	fmt.Fprintln(a.errOut, infoStyle.Render("→")+" creating config for "+url)
	conf, configType, err := a.getConfig(cmd, kindSecure, url)
	if err != nil {
		return fmt.Errorf("failed obtaining config for %s: %w", url, err)
	}
	path := filepath.Join(dir, discovery.Host(url)+configExt(configType))
	if err := afero.WriteFile(a.fs, path, []byte(conf), 0o600); err != nil {
		return fmt.Errorf("failed writing config for %s: %w", url, err)
	}
	return nil
}

func (a *app) orgsCmd() *cobra.Command {
	var raw bool
	var lang string
	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "List discovery organizations",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.withSession(func(cmd *cobra.Command, _ []string) error {
		data, err := a.client.GetOrganizationsList(a.cfg.Client.ID)
		if err != nil {
			return err
		}
		if raw {
			fmt.Fprintln(a.out, highlight(data, "json"))
			return nil
		}
		orgs, err := discovery.ParseOrganizations(data)
		if err != nil {
			return err
		}
		for _, o := range orgs {
			fmt.Fprintf(a.out, "%s  %s\n", o.DisplayName.String(lang), dimStyle.Render(o.SecureInternetHome))
		}
		return nil
	})
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON document")
	cmd.Flags().StringVar(&lang, "lang", "en", "language for display names")
	return cmd
}

func (a *app) serversCmd() *cobra.Command {
	var raw bool
	var kind string
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List discovery servers",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.withSession(func(cmd *cobra.Command, _ []string) error {
		data, err := a.client.GetServersList(a.cfg.Client.ID)
		if err != nil {
			return err
		}
		if raw {
			fmt.Fprintln(a.out, highlight(data, "json"))
			return nil
		}
		servers, err := discovery.ParseServers(data)
		if err != nil {
			return err
		}
		for _, s := range servers {
			if kind != "" && s.Type != kind {
				continue
			}
			fmt.Fprintf(a.out, "%-16s %-28s %s\n", s.Type, s.Name(), dimStyle.Render(s.BaseURL))
		}
		return nil
	})
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON document")
	cmd.Flags().StringVar(&kind, "type", "", "only list servers of this type (secure_internet, institute_access)")
	return cmd
}

func (a *app) identifierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identifier",
		Short: "Get or set the current server identifier",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the current server identifier",
			Args:  cobra.NoArgs,
			RunE: a.withSession(func(cmd *cobra.Command, _ []string) error {
				id, err := a.client.GetIdentifier(a.cfg.Client.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <identifier>",
			Short: "Set the current server identifier",
			Args:  cobra.ExactArgs(1),
			RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
				return a.client.SetIdentifier(a.cfg.Client.ID, args[0])
			}),
		},
	)
	return cmd
}

func (a *app) notifyCmd(use, short string, fn func(c *eduvpn.Client, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, _ []string) error {
			if err := fn(a.client, a.cfg.Client.ID); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("✓")+" "+use)
			return nil
		}),
	}
}

// settingsCmd shows or saves the effective configuration.
func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or save the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := yamlv3.Marshal(a.cfg)
				if err != nil {
					return err
				}
				if a.source != "" {
					fmt.Fprintln(a.errOut, dimStyle.Render("# from "+a.source))
				}
				fmt.Fprintln(a.out, highlight(strings.TrimSuffix(string(data), "\n"), "yaml"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "save [file]",
			Short: "Write the effective configuration to the config file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := config.DefaultPaths()[0]
				if len(args) == 1 {
					path = args[0]
				}
				if err := config.Save(a.fs, path, a.cfg); err != nil {
					return err
				}
				fmt.Fprintln(a.out, successStyle.Render("✓")+" saved "+path)
				return nil
			},
		},
	)
	return cmd
}
