package main

import (
	"context"
	"fmt"
	"os"

	"github.com/artpar/crmgate/adapters/idgen"
	"github.com/artpar/crmgate/adapters/sqlite"
	"github.com/artpar/crmgate/bootstrap"
	"github.com/artpar/crmgate/config"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect and seed module definitions",
}

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the modules registered in the database",
	RunE:  runModulesList,
}

var modulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the built-in and configured module definitions",
	Long: `Seed module definitions into the database without starting the server.

Applies the built-in core modules plus any YAML definitions from the
configured modules directory. Modules that already exist are left untouched.`,
	RunE: runModulesSeed,
}

func init() {
	modulesCmd.AddCommand(modulesListCmd)
	modulesCmd.AddCommand(modulesSeedCmd)
	rootCmd.AddCommand(modulesCmd)
}

// openRegistry loads config, opens the database and returns a loaded registry.
func openRegistry() (*registry.Registry, *sqlite.DB, *config.Config, error) {
	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(cfgFile); statErr == nil {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadEnv()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}

	reg := registry.New(sqlite.NewModuleStore(db), idgen.UUID{}, bootstrap.NewLogger(cfg.Logging))
	if err := reg.Load(context.Background()); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return reg, db, cfg, nil
}

func runModulesList(cmd *cobra.Command, args []string) error {
	reg, db, _, err := openRegistry()
	if err != nil {
		return err
	}
	defer db.Close()

	mods := reg.List()
	if len(mods) == 0 {
		fmt.Println("No modules registered. Run 'crmgate modules seed' or 'crmgate serve'.")
		return nil
	}
	for _, m := range mods {
		fmt.Printf("%-12s %d fields", m.Name, len(m.Fields))
		if m.Description != "" {
			fmt.Printf("  %s", m.Description)
		}
		fmt.Println()
		for _, f := range m.Fields {
			req := ""
			if f.Required {
				req = " required"
			}
			fmt.Printf("    %-16s %s%s\n", f.Name, f.Type, req)
		}
	}
	return nil
}

func runModulesSeed(cmd *cobra.Command, args []string) error {
	reg, db, cfg, err := openRegistry()
	if err != nil {
		return err
	}
	defer db.Close()

	mods, err := bootstrap.CoreModules()
	if err != nil {
		return err
	}
	if dir := cfg.Seed.ModulesDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			extra, err := schema.ParseDir(dir)
			if err != nil {
				return fmt.Errorf("module definitions invalid: %w", err)
			}
			mods = append(mods, extra...)
		}
	}

	before := len(reg.List())
	if err := reg.Seed(context.Background(), mods); err != nil {
		return err
	}
	fmt.Printf("Seeded %d new modules (%d total)\n", len(reg.List())-before, len(reg.List()))
	return nil
}
