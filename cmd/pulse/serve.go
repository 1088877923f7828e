package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/pulse/bootstrap"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics server",
	Long: `Start the Pulse server.

The server will:
  - Load configuration from pulse.yaml (or --config)
  - Or load configuration from PULSE_* environment variables
  - Open the event database and any configured mirrors
  - Accept events, serve analytics and run exports
  - Run the aggregation jobs on their schedule when enabled

With a config file, rate limits, prices and the log level are reloaded
when the file changes or on SIGHUP.

Examples:
  pulse serve
  pulse serve --config /etc/pulse/config.yaml
  pulse serve --hot-reload=false

  # Docker (env vars only):
  PULSE_ADMIN_TOKEN=secret PULSE_REDIS_URL=redis://redis:6379/0 pulse serve`,
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

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := loadConfig()
		if loadErr != nil {
			return loadErr
		}
		app, err = bootstrap.New(cfg)
	}
	if err != nil {
		return err
	}

	// Run (blocks until shutdown)
	return app.Run()
}
