package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "relay - health-aware mirror proxy for container registries",
	Long: `relay is a reverse proxy for container image distribution that mirrors
Docker/OCI v2 registry traffic across a pool of upstream mirrors.

It acts as a transparent registry endpoint, providing:
  - Health-aware upstream selection across configured mirrors
  - Bearer-token handshake brokering for authenticated upstreams
  - Streaming pass-through of manifests and blobs with failover
  - Traffic accounting and an Admin API for mirror management

For more information, visit: https://github.com/relaydock/relay`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
