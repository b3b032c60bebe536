package portal

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	calls []string
	creds Credentials
	err   error
}

func (d *fakeDriver) Approve(_ context.Context, authURL string, creds Credentials) error {
	d.calls = append(d.calls, authURL)
	d.creds = creds
	return d.err
}

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestRun(t *testing.T) {
	const authURL = "https://vpn.example.edu/vpn-user-portal/oauth/authorize?client_id=x"
	full := map[string]string{EnvUser: "alice", EnvPass: "secret"}

	tests := []struct {
		name       string
		args       []string
		env        map[string]string
		driverErr  error
		wantCode   int
		wantOutput string
		wantCalls  int
	}{
		{"no args", nil, full, nil, 1, "Error: no auth url specified", 0},
		{"two args", []string{authURL, "extra"}, full, nil, 1, "Error: no auth url specified", 0},
		{"missing user", []string{authURL}, map[string]string{EnvPass: "secret"}, nil, 1, "PORTAL_USER", 0},
		{"missing pass", []string{authURL}, map[string]string{EnvUser: "alice"}, nil, 1, "PORTAL_PASS", 0},
		{"driver fails", []string{authURL}, full, errors.New("title mismatch"), 1, "title mismatch", 1},
		{"approved", []string{authURL}, full, nil, 0, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			driver := &fakeDriver{err: tt.driverErr}
			built := 0
			code := Run(context.Background(), tt.args, env(tt.env), &out, func() (Driver, error) {
				built++
				return driver, nil
			})

			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, out.String(), tt.wantOutput)
			assert.Len(t, driver.calls, tt.wantCalls)
			if tt.wantCalls == 0 {
				assert.Zero(t, built, "driver must not be created before validation passes")
			} else {
				assert.Equal(t, authURL, driver.calls[0])
				assert.Equal(t, Credentials{User: "alice", Pass: "secret"}, driver.creds)
			}
		})
	}
}

func TestCredentialsAcceptEmpty(t *testing.T) {
	creds, err := CredentialsFromEnv(env(map[string]string{EnvUser: "", EnvPass: ""}))
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, creds)
}

func TestDriverFromEnv(t *testing.T) {
	_, err := DriverFromEnv(env(nil), nil, nil)
	require.ErrorIs(t, err, ErrNoDriver)

	d, err := DriverFromEnv(env(map[string]string{EnvDriver: "python3  selenium_eduvpn.py"}), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "selenium_eduvpn.py"}, d.(*ExecDriver).Command)
}

func TestExecDriverPassesURLAndCredentials(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	var out bytes.Buffer
	d := &ExecDriver{
		Command: []string{"sh", "-c", `printf '%s %s %s' "$PORTAL_USER" "$PORTAL_PASS" "$0"`},
		Stdout:  &out,
	}
	require.NoError(t, d.Approve(context.Background(), "https://auth", Credentials{User: "bob", Pass: "pw"}))
	assert.Equal(t, "bob pw https://auth", out.String())

	d = &ExecDriver{Command: []string{"sh", "-c", "exit 3"}}
	require.Error(t, d.Approve(context.Background(), "https://auth", Credentials{}))
}
