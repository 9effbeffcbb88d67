package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironsession/internal/authtest"
)

type cli struct {
	t      *testing.T
	global []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	fake := authtest.NewServer(authtest.SingleProfile(), authtest.MultiProfile())
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)
	return &cli{
		t: t,
		global: []string{
			"--api-url", srv.URL,
			"--data-dir", t.TempDir(),
			"--biometric", "fingerprint",
			"--platform", "android",
			"--log-level", "error",
		},
	}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	return c.runContext(c.t.Context(), args...)
}

func (c *cli) runContext(ctx context.Context, args ...string) (string, error) {
	c.t.Helper()
	loginEmail, loginPassword, enrollBiometric = "", "", false
	biometricCancel, biometricPassword = false, ""
	// Cobra keeps the first context it hands a subcommand.
	setContexts(rootCmd, ctx)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, c.global...))
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func setContexts(cmd *cobra.Command, ctx context.Context) {
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		setContexts(sub, ctx)
	}
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestCLI_SessionLifecycle(t *testing.T) {
	c := newCLI(t)
	ben := authtest.MultiProfile()

	assert.Contains(t, c.mustRun("status"), "Not signed in.")

	out := c.mustRun("login", "--email", ben.User.Email, "--password", ben.Password)
	assert.Contains(t, out, "Signed in as Ben")
	assert.Contains(t, out, "Tip: rerun with --enroll-biometric")
	assert.Contains(t, out, "next: select-profile")

	out = c.mustRun("profiles", "list")
	assert.Contains(t, out, "p-2")
	assert.Contains(t, out, "p-3")

	out = c.mustRun("profiles", "select", "p-3")
	assert.Contains(t, out, "Profile: Ben (owner at Globex)")
	assert.Contains(t, out, "next: home")

	out = c.mustRun("status")
	assert.Contains(t, out, "Phase: authenticated")
	assert.Contains(t, out, "Stored values: accessToken, refreshToken, user, profiles, selectedProfile")
	assert.Contains(t, out, "next: home")

	_, err := c.run("profiles", "select", "p-404")
	assert.Error(t, err)

	assert.Contains(t, c.mustRun("biometric", "status"), "Method: Fingerprint")
	assert.Contains(t, c.mustRun("biometric", "enable", "--password", ben.Password), "Fingerprint sign-in enabled.")
	assert.Contains(t, c.mustRun("biometric", "status"), "Fast sign-in available: true")

	out = c.mustRun("logout")
	assert.Contains(t, out, "Signed out.")
	assert.Contains(t, out, "next: login")
	out = c.mustRun("status")
	assert.Contains(t, out, "Not signed in.")
	assert.Contains(t, out, "Stored values: biometricCredentials\n")

	out = c.mustRun("biometric", "login", "--cancel")
	assert.Contains(t, out, "not completed")
	assert.Contains(t, c.mustRun("status"), "Not signed in.")

	out = c.mustRun("biometric", "login")
	assert.Contains(t, out, "Signed in as Ben")
	assert.Contains(t, out, "next: select-profile")

	assert.Contains(t, c.mustRun("biometric", "disable"), "Biometric sign-in disabled.")
	_, err = c.run("biometric", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no biometric credentials enrolled")
}

func TestCLI_LoginEnrollsOnRequest(t *testing.T) {
	c := newCLI(t)
	ana := authtest.SingleProfile()

	out := c.mustRun("login", "--email", ana.User.Email, "--password", ana.Password, "--enroll-biometric")
	assert.Contains(t, out, "Fingerprint sign-in enabled.")
	assert.Contains(t, out, "next: home")
	assert.Contains(t, c.mustRun("status"), "Biometric sign-in: true")
}

func TestCLI_LoginErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("login", "--email", "ana@example.com")
	require.Error(t, err)
	assert.Equal(t, "please enter your email and password", err.Error())

	_, err = c.run("login", "--email", "ana@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "login failed: Invalid email or password", err.Error())
}

func TestCLI_EachRunUsesItsOwnContext(t *testing.T) {
	c := newCLI(t)
	ana := authtest.SingleProfile()

	ctx, cancel := context.WithCancel(t.Context())
	_, err := c.runContext(ctx, "login", "--email", ana.User.Email, "--password", ana.Password)
	require.NoError(t, err)
	cancel()

	_, err = c.run("login", "--email", ana.User.Email, "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "login failed: Invalid email or password", err.Error())
	assert.Contains(t, c.mustRun("status"), "Signed in as Ana")
}

func TestCLI_Version(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("version"), "ironsession dev")
}
