package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "restify",
	Short:         "Serve repository entities as REST routes",
	Long:          `restify binds the entities listed in its configuration to GET, POST, PUT, PATCH and DELETE routes over an in-memory, SQL or MongoDB store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML, JSON or TOML); RESTIFY_* env vars override it")
	rootCmd.AddCommand(serveCmd, routesCmd, versionCmd)
}
