package main

import (
	"fmt"
	"os"

	"github.com/artpar/crmgate/bootstrap"
	"github.com/artpar/crmgate/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CRM server",
	Long: `Start the crmgate HTTP server.

The server will:
  - Load configuration from crmgate.yaml (or --config)
  - Or load configuration from CRMGATE_* environment variables
  - Open the database and run migrations
  - Seed the default modules, roles and conversion rules on first boot
  - Serve the entity API, the lead webhook and Prometheus metrics

Environment variables (for Docker deployments):
  CRMGATE_DATABASE_DSN      - Database path (default: crmgate.db)
  CRMGATE_SERVER_PORT       - Server port (default: 8080)
  CRMGATE_WEBHOOK_SECRET    - HMAC secret for inbound lead webhooks
  CRMGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  crmgate serve
  crmgate serve --config /etc/crmgate/config.yaml
  crmgate serve --hot-reload=false

  # Docker (env vars only):
  CRMGATE_DATABASE_DSN=/data/crm.db crmgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	switch {
	case hasConfigFile && hotReload:
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	case hasConfigFile:
		cfg, loadErr := config.Load(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		app, err = bootstrap.New(cfg)
	default:
		if !config.HasEnvConfig() {
			fmt.Println("No configuration found, using built-in defaults.")
			fmt.Printf("Run 'crmgate init' to create %s\n", cfgFile)
		} else {
			fmt.Println("Running with environment variables (no config file)")
		}
		cfg, loadErr := config.LoadEnv()
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
