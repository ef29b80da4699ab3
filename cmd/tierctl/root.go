package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/egibi/tierd/internal/apiclient"
)

var (
	daemonURL  string
	reqTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tierctl",
	Short: "Operator CLI for the tierd storage lifecycle daemon",
	Long: `tierctl drives the tierd daemon: inspect hot and cold partitions,
archive and restore them, run database backups, prune stale OIDC
credentials and read the lifecycle audit trail.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonURL, "url", envOr("TIERD_URL", "http://localhost:8093"), "tierd base URL")
	rootCmd.PersistentFlags().DurationVar(&reqTimeout, "timeout", 20*time.Minute, "request timeout (archive and backup run within the request)")
}

func client() *apiclient.Client {
	return apiclient.New(daemonURL, reqTimeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
