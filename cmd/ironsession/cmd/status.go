package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironsession/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the restored session",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		out := cmd.OutOrStdout()
		st := env.manager.State()
		printState(out, st)
		fmt.Fprintf(out, "Phase: %s\n", st.Phase())
		fmt.Fprintf(out, "Biometric sign-in: %t\n", st.BiometricEnabled)
		present, err := env.store.Present(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(present))
		for _, key := range present {
			names = append(names, key.String())
		}
		if len(names) == 0 {
			names = append(names, "none")
		}
		fmt.Fprintf(out, "Stored values: %s\n", strings.Join(names, ", "))
		printIntent(out, env.intent)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		var next session.Intent
		unsubscribe := env.manager.Subscribe(func(ev session.Event) {
			if ev.Intent != session.IntentNone {
				next = ev.Intent
			}
		})
		defer unsubscribe()

		if err := env.manager.Logout(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Signed out.")
		printIntent(out, next)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd, logoutCmd)
}
