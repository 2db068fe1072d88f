package main

import (
	"fmt"
	"os"

	"github.com/artpar/crmgate/config"
	"github.com/artpar/crmgate/core/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and module definitions",
	Long: `Validate the configuration file and any seed module YAML files.

Examples:
  crmgate validate
  crmgate validate --config /etc/crmgate/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("Configuration valid")
	fmt.Printf("  Server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Database: %s\n", cfg.Database.DSN)

	if cfg.Seed.ModulesDir != "" {
		if _, err := os.Stat(cfg.Seed.ModulesDir); os.IsNotExist(err) {
			return nil
		}
		mods, err := schema.ParseDir(cfg.Seed.ModulesDir)
		if err != nil {
			return fmt.Errorf("module definitions invalid: %w", err)
		}
		for _, m := range mods {
			fmt.Printf("  Module:   %s (%d fields)\n", m.Name, len(m.Fields))
		}
	}
	return nil
}
