package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/artpar/pulse/adapters/sqlite"
	"github.com/artpar/pulse/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the Pulse configuration file.

Checks:
  - YAML syntax is valid
  - Drivers and their required settings are present
  - Schedules parse
  - Database is writable (optional)

Examples:
  pulse validate
  pulse validate --config /etc/pulse/config.yaml --check-database`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	// Check file exists
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	// Load and validate config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	// Show config summary
	fmt.Printf("  %s Listen: %s\n", checkMark, cfg.Addr())
	fmt.Printf("  %s Database: %s\n", checkMark, cfg.Database.Path)
	for _, m := range cfg.Storage.Mirrors {
		fmt.Printf("  %s Mirror: %s (%s)\n", checkMark, m.Name, m.Driver)
	}
	fmt.Printf("  %s Cache: %s\n", checkMark, cfg.Cache.Driver)
	fmt.Printf("  %s Export files: %s (max %s)\n", checkMark, cfg.Objects.Driver, humanize.Bytes(uint64(cfg.MaxFileSizeBytes())))
	fmt.Printf("  %s Geo: %s\n", checkMark, cfg.Geo.Driver)
	fmt.Printf("  %s Rate limit: %d events/min per project\n", checkMark, cfg.Ingestion.RateLimitPerMinute)
	if cfg.Admin.Token == "" {
		fmt.Printf("  %s Admin token not set; admin API and cost tracking disabled\n", crossMark)
	}

	if cfg.Schedule.Enabled {
		for job, spec := range cfg.Schedule.Jobs() {
			sched, _ := cron.ParseStandard(spec)
			fmt.Printf("  %s Job %s: %q\n", checkMark, job, spec)
			if sched != nil {
				fmt.Printf("      next run: %s\n", humanize.Time(sched.Next(time.Now().UTC())))
			}
		}
	} else {
		fmt.Printf("  %s Schedule disabled; run 'pulse aggregate' externally\n", checkMark)
	}

	// Optional: check database
	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.Path); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkDatabaseWritable(path string) error {
	db, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}
