package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironsession/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ironsession",
	Short: "IronSession manages a signed-in session against an auth API",
	Long: `A terminal client for signing in, choosing a profile and managing
biometric sign-in. Session state is kept in an encrypted on-device store
and restored on every invocation.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}
