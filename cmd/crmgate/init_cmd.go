package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/crmgate/bootstrap"
	"github.com/artpar/crmgate/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration",
	Long: `Initialize a crmgate working directory.

This will:
  1. Write a default configuration file
  2. Write the core module definitions (lead, contact, account, deal, task)
     to the seed modules directory so they can be customized

Examples:
  crmgate init
  crmgate init --config /etc/crmgate/config.yaml --database /data/crm.db`,
	RunE: runInit,
}

var (
	initDatabase   string
	initModulesDir string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initDatabase, "database", "crmgate.db", "database file path")
	initCmd.Flags().StringVar(&initModulesDir, "modules-dir", "modules", "seed modules directory")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", cfgFile)
	}

	cfg := config.Default()
	cfg.Database.DSN = initDatabase
	cfg.Seed.ModulesDir = initModulesDir

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgFile, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfgFile, err)
	}
	fmt.Printf("Wrote %s\n", cfgFile)

	if err := os.MkdirAll(initModulesDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", initModulesDir, err)
	}

	mods, err := bootstrap.CoreModules()
	if err != nil {
		return err
	}
	for _, mod := range mods {
		path := filepath.Join(initModulesDir, mod.Name+".yaml")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := yaml.Marshal(mod)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("Wrote %s\n", path)
	}

	fmt.Println()
	fmt.Println("Next: crmgate serve")
	return nil
}
