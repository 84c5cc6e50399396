// Package main provides the rnc-api command: the RNC validation server and
// its maintenance subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fourone/rnc-api/internal/config"
	"github.com/fourone/rnc-api/internal/metrics"
)

var version = metrics.Version

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the binary without a
// subcommand starts the server.
func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "rnc-api",
		Short: "RNC registry validation API",
		Long: `rnc-api serves lookups against the DGII taxpayer registry (RNC).

Configuration is read from the environment and an optional .env file.
Without a subcommand the HTTP server is started.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (ignored if missing)")

	root.AddCommand(newServeCmd(), newImportCmd(), newTokenCmd())
	return root
}

func loadEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	return config.LoadDotEnv(envFile)
}
