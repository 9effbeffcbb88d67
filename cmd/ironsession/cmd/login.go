package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/session"
)

var (
	loginEmail      string
	loginPassword   string
	enrollBiometric bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		out := cmd.OutOrStdout()
		creds := auth.Credentials{Email: loginEmail, Password: loginPassword}

		intent, err := env.manager.Login(ctx, creds)
		if err != nil {
			return loginFailure(err)
		}
		printState(out, env.manager.State())

		if env.manager.EnrollmentOffer(ctx) {
			label := env.manager.BiometricLabel(ctx, env.platform())
			if !enrollBiometric {
				fmt.Fprintf(out, "Tip: rerun with --enroll-biometric to sign in with %s next time.\n", label)
			} else if err := env.manager.SaveBiometricCredentials(ctx, creds); err != nil {
				env.logger.Warn("biometric enrollment failed", "error", err)
				fmt.Fprintf(out, "Could not enable %s sign-in.\n", label)
			} else {
				fmt.Fprintf(out, "%s sign-in enabled.\n", label)
			}
		}
		printIntent(out, intent)
		return nil
	}),
}

// loginFailure turns a session error into the message a user should see.
func loginFailure(err error) error {
	var loginErr *session.LoginError
	switch {
	case errors.Is(err, session.ErrMissingCredentials):
		return errors.New("please enter your email and password")
	case errors.As(err, &loginErr):
		return fmt.Errorf("login failed: %s", loginErr.Message)
	default:
		return err
	}
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.Flags().BoolVar(&enrollBiometric, "enroll-biometric", false, "Store these credentials for biometric sign-in")
}
