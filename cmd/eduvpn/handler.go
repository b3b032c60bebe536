package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Gaurav-Gosain/eduvpn"
	"github.com/Gaurav-Gosain/eduvpn/internal/discovery"
)

// Engine states the handler reacts to.
const (
	stateOAuthStarted = "OAuth_Started"
	stateAskProfile   = "Ask_Profile"
	stateAskLocation  = "Ask_Location"
)

// chooser asks the user to pick one of options and returns its index.
type chooser interface {
	Choose(title string, options []string) (int, error)
}

// readlineChooser prompts on the terminal until a valid number is entered.
type readlineChooser struct {
	out io.Writer
}

func (c *readlineChooser) Choose(title string, options []string) (int, error) {
	fmt.Fprintln(c.out, titleStyle.Render(title))
	for i, opt := range options {
		fmt.Fprintf(c.out, "  %s %s\n", cmdStyle.Render(fmt.Sprintf("%2d", i+1)), opt)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptStyle.Render("choice") + dimStyle.Render(" > "),
		InterruptPrompt: "^C",
		Stdout:          c.out,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n <= 0 || n > len(options) {
			fmt.Fprintln(c.out, warningStyle.Render("invalid choice, please retry"))
			continue
		}
		return n - 1, nil
	}
}

// openURL starts the platform browser without waiting for it.
func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// OnStateChange drives the interactive parts of the OAuth flow.
func (a *app) OnStateChange(ev eduvpn.StateChangeEvent) {
	a.logger.Debug().
		Str("old", ev.OldState).
		Str("new", ev.NewState).
		Bool("data", ev.Data != "").
		Msg("state change")

	if a.verbose {
		fmt.Fprintf(a.errOut, "%s %s %s\n", dimStyle.Render(ev.OldState), dimStyle.Render("→"), stateStyle.Render(ev.NewState))
	}
	if ev.Error != "" {
		fmt.Fprintln(a.errOut, warningStyle.Render("Warning:")+" "+ev.Error)
	}

	var err error
	switch ev.NewState {
	case stateOAuthStarted:
		err = a.authorize(ev.Data)
	case stateAskProfile:
		err = a.askProfile(ev.Data)
	case stateAskLocation:
		err = a.askLocation(ev.Data)
	}
	if err != nil {
		a.logger.Error().Err(err).Str("state", ev.NewState).Msg("state handler failed")
		fmt.Fprintln(a.errOut, errorStyle.Render("Error:")+" "+err.Error())
	}
}

func (a *app) authorize(authURL string) error {
	if authURL == "" {
		return errors.New("OAuth started without an authorization URL")
	}
	fmt.Fprintln(a.errOut, infoStyle.Render("OAuth:")+" initialized with "+authURL)

	if a.portalLogin != "" {
		fmt.Fprintln(a.errOut, infoStyle.Render("OAuth:")+" approving with "+a.portalLogin)
		cmd := exec.Command(a.portalLogin, authURL)
		cmd.Stdout = a.errOut
		cmd.Stderr = a.errOut
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", a.portalLogin, err)
		}
		go func() {
			if err := cmd.Wait(); err != nil {
				a.logger.Error().Err(err).Msg("portal login failed")
			}
		}()
		return nil
	}

	fmt.Fprintln(a.errOut, infoStyle.Render("OAuth:")+" opening browser...")
	return a.openURL(authURL)
}

func (a *app) askProfile(data string) error {
	info, err := discovery.ParseProfiles(data)
	if err != nil {
		return err
	}
	profiles := info.Profiles()
	if len(profiles) == 0 {
		return errors.New("server offered no profiles")
	}

	choice := 0
	if len(profiles) > 1 {
		names := make([]string, len(profiles))
		for i, p := range profiles {
			names[i] = p.DisplayName
			if p.ID == info.Current {
				names[i] += dimStyle.Render(" (current)")
			}
		}
		if choice, err = a.chooser.Choose("Multiple VPN profiles found. Please select a profile", names); err != nil {
			return err
		}
	}

	id := profiles[choice].ID
	fmt.Fprintln(a.errOut, successStyle.Render("✓")+" profile "+id)
	return a.client.SetProfileID(a.cfg.Client.ID, id)
}

func (a *app) askLocation(data string) error {
	locations, err := discovery.ParseLocations(data)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		return errors.New("no Secure Internet locations available")
	}

	names := make([]string, len(locations))
	for i, l := range locations {
		names[i] = strings.ToUpper(l)
	}
	choice, err := a.chooser.Choose("Please select a Secure Internet location", names)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.errOut, successStyle.Render("✓")+" location "+names[choice])
	return a.client.SetSecureLocation(a.cfg.Client.ID, locations[choice])
}
