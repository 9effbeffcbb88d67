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
	biometricCancel   bool
	biometricPassword string
)

var biometricCmd = &cobra.Command{
	Use:   "biometric",
	Short: "Manage biometric sign-in",
}

var biometricLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the enrolled biometric",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		out := cmd.OutOrStdout()
		env.verifier.Succeed = !biometricCancel

		res, err := env.manager.LoginWithBiometric(ctx)
		switch {
		case errors.Is(err, session.ErrBiometricUnavailable):
			return errors.New("biometric sign-in is not available on this device")
		case errors.Is(err, session.ErrNoStoredCredentials):
			return errors.New("no biometric credentials enrolled; sign in with your password first")
		case err != nil:
			return loginFailure(err)
		}
		if !res.Completed {
			fmt.Fprintln(out, "Biometric check not completed. Sign in with your password.")
			printIntent(out, session.IntentLogin)
			return nil
		}
		printState(out, env.manager.State())
		printIntent(out, res.Intent)
		return nil
	}),
}

var biometricEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enroll the signed-in account for biometric sign-in",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		st := env.manager.State()
		if !st.IsAuthenticated() {
			return errors.New("sign in before enabling biometric sign-in")
		}
		if err := env.manager.EnableBiometric(ctx, true); err != nil {
			return err
		}
		creds := auth.Credentials{Email: st.User.Email, Password: biometricPassword}
		if err := env.manager.SaveBiometricCredentials(ctx, creds); err != nil {
			if errors.Is(err, session.ErrMissingCredentials) {
				return errors.New("--password is required to enroll")
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s sign-in enabled.\n", env.manager.BiometricLabel(ctx, env.platform()))
		return nil
	}),
}

var biometricDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove enrolled biometric credentials",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		if err := env.manager.EnableBiometric(ctx, false); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Biometric sign-in disabled.")
		return nil
	}),
}

var biometricStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show biometric capability and enrollment",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Method: %s\n", env.manager.BiometricLabel(ctx, env.platform()))
		fmt.Fprintf(out, "Enabled: %t\n", env.manager.State().BiometricEnabled)
		fmt.Fprintf(out, "Fast sign-in available: %t\n", env.manager.BiometricLoginAvailable(ctx))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(biometricCmd)
	biometricCmd.AddCommand(biometricLoginCmd, biometricEnableCmd, biometricDisableCmd, biometricStatusCmd)
	biometricLoginCmd.Flags().BoolVar(&biometricCancel, "cancel", false, "Simulate a cancelled biometric prompt")
	biometricEnableCmd.Flags().StringVar(&biometricPassword, "password", "", "Account password to store for biometric sign-in")
}
