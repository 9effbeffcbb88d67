package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/session"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List or select profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profiles of the signed-in user",
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		out := cmd.OutOrStdout()
		st := env.manager.State()
		if !st.IsAuthenticated() {
			printIntent(out, session.IntentLogin)
			return errors.New("not signed in")
		}
		if len(st.Profiles) == 0 {
			fmt.Fprintln(out, "No profiles are available to this account.")
			return nil
		}
		for _, p := range st.Profiles {
			marker := " "
			if st.SelectedProfile != nil && st.SelectedProfile.ID == p.ID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-12s %-20s %-12s %s\n", marker, p.ID, p.Name, p.Role, p.CompanyName)
		}
		return nil
	}),
}

var profilesSelectCmd = &cobra.Command{
	Use:   "select <id>",
	Short: "Act under the given profile",
	Args:  cobra.ExactArgs(1),
	RunE: withEnvironment(func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error {
		if err := env.manager.SelectProfile(ctx, auth.Profile{ID: args[0]}); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printState(out, env.manager.State())
		printIntent(out, session.IntentHome)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd, profilesSelectCmd)
}
