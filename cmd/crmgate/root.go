package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crmgate",
	Short: "Metadata-driven CRM engine with dynamic modules and lead conversion",
	Long: `crmgate is a self-hosted CRM engine.

Record types (modules) are defined as field metadata rather than code:
administrators add modules and fields at runtime and the engine derives
validation, storage and the REST API from the definitions. Leads convert
into accounts, contacts and deals through configurable rules.

Quick start:
  crmgate init      # Create config file and seed module definitions
  crmgate serve     # Start the HTTP server

Management:
  crmgate validate  # Validate configuration
  crmgate version   # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "crmgate.yaml", "config file path")
}
