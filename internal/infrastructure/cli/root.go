// Package cli implements the reviewd command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "reviewd",
	Version: Version,
	Short:   "A session-bridging code review server",
	Long: `Reviewd runs security and quality reviews over source files.
It serves long-lived review sessions over HTTP, bridges them to
per-session worker processes, and applies layered exclusion rules
before any scanner ever sees a file.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to reviewd.yaml (default: standard lookup)")
}
