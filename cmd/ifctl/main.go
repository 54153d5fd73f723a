// Package main implements ifctl, a command-line client for the insightflow
// HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

// options are the flags shared by every command.
type options struct {
	serverURL string
	userID    string
	projectID string
	timeout   time.Duration
	jsonOut   bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ifctl",
		Short: "CLI for the insightflow document API",
		Long: `ifctl is a command-line interface for the insightflow HTTP API.
It ingests documents, asks questions about them and removes them.

Every document lives in a scope made of a user, a project and a document id.
Set the user and project once with flags or the IFCTL_USER and IFCTL_PROJECT
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.serverURL, "server", envOr("IFCTL_SERVER", "http://localhost:8000"), "insightflow server URL")
	flags.StringVar(&opts.userID, "user", os.Getenv("IFCTL_USER"), "user id of the document owner")
	flags.StringVar(&opts.projectID, "project", os.Getenv("IFCTL_PROJECT"), "project id")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")
	flags.BoolVar(&opts.jsonOut, "json", false, "print raw JSON responses")

	root.AddCommand(
		newIngestCmd(opts),
		newQueryCmd(opts),
		newDeleteCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
