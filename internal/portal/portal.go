// Package portal implements the portal-login collaborator: it takes an OAuth
// authorization URL and drives an external browser automation tool that
// signs in to the VPN user portal and approves the application.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Environment variables read by Run.
const (
	EnvUser   = "PORTAL_USER"
	EnvPass   = "PORTAL_PASS"
	EnvDriver = "PORTAL_DRIVER"
)

var (
	ErrNoAuthURL = errors.New("no auth url specified")
	ErrNoUser    = errors.New("no portal username set, set the " + EnvUser + " env var")
	ErrNoPass    = errors.New("no portal password set, set the " + EnvPass + " env var")
	ErrNoDriver  = errors.New("no portal driver set, set the " + EnvDriver + " env var")
)

// LookupFunc has the semantics of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Credentials are the portal login credentials.
type Credentials struct {
	User string
	Pass string
}

// Driver signs in to the portal at authURL and approves the application.
type Driver interface {
	Approve(ctx context.Context, authURL string, creds Credentials) error
}

// ParseArgs returns the single authorization URL argument.
func ParseArgs(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", ErrNoAuthURL
	}
	return args[0], nil
}

// CredentialsFromEnv reads the credentials. A variable that is set but empty
// is accepted.
func CredentialsFromEnv(lookup LookupFunc) (Credentials, error) {
	user, ok := lookup(EnvUser)
	if !ok {
		return Credentials{}, ErrNoUser
	}
	pass, ok := lookup(EnvPass)
	if !ok {
		return Credentials{}, ErrNoPass
	}
	return Credentials{User: user, Pass: pass}, nil
}

// ExecDriver runs an external command with the authorization URL as its
// final argument and the credentials in its environment.
type ExecDriver struct {
	Command []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// DriverFromEnv builds an ExecDriver from PORTAL_DRIVER, a command line split
// on whitespace.
func DriverFromEnv(lookup LookupFunc, stdout, stderr io.Writer) (Driver, error) {
	cmdline, _ := lookup(EnvDriver)
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, ErrNoDriver
	}
	return &ExecDriver{Command: fields, Stdout: stdout, Stderr: stderr}, nil
}

// Approve runs the driver command and waits for it to exit.
func (d *ExecDriver) Approve(ctx context.Context, authURL string, creds Credentials) error {
	args := append(append([]string{}, d.Command[1:]...), authURL)
	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	cmd.Env = append(os.Environ(), EnvUser+"="+creds.User, EnvPass+"="+creds.Pass)
	cmd.Stdout = d.Stdout
	cmd.Stderr = d.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("portal driver %s: %w", d.Command[0], err)
	}
	return nil
}

// Run validates the arguments and environment, then approves authURL with
// the driver returned by newDriver. It returns the process exit code. All
// validation happens before newDriver is called.
func Run(ctx context.Context, args []string, lookup LookupFunc, stdout io.Writer, newDriver func() (Driver, error)) int {
	fail := func(err error) int {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}

	authURL, err := ParseArgs(args)
	if err != nil {
		return fail(err)
	}
	creds, err := CredentialsFromEnv(lookup)
	if err != nil {
		return fail(err)
	}

	driver, err := newDriver()
	if err != nil {
		return fail(err)
	}
	if err := driver.Approve(ctx, authURL, creds); err != nil {
		return fail(err)
	}
	return 0
}
