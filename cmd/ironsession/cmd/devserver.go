package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironsession/internal/authtest"
)

var devServerPort int

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run a local fake auth API with demo accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts := []authtest.Account{authtest.SingleProfile(), authtest.MultiProfile(), authtest.NoProfiles()}
		fake := authtest.NewServer(accounts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/*", fake.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", devServerPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out, "Development Auth API")
		fmt.Fprintf(out, "Listening on http://%s\n", server.Addr)
		for _, a := range accounts {
			fmt.Fprintf(out, "  %-18s %d profile(s)\n", a.User.Email, len(a.Profiles))
		}
		fmt.Fprintf(out, "Password for every account: %q\n", authtest.Password)

		select {
		case <-cmd.Context().Done():
			fmt.Fprintln(out, "\nShutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(devServerCmd)
	devServerCmd.Flags().IntVarP(&devServerPort, "port", "p", 8080, "Port to listen on")
}
