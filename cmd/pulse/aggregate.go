package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/bootstrap"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <hourly|daily|weekly|cleanup>",
	Short: "Run an aggregation job once",
	Long: `Run one aggregation job against the configured database and exit.

Jobs:
  hourly   Roll up the previous full hour
  daily    Roll up the previous full day
  weekly   Roll up the previous week and build weekly reports
  cleanup  Delete events, rollups and exports past retention

Use this from an external scheduler when schedule.enabled is false.

Examples:
  pulse aggregate hourly
  pulse aggregate cleanup --config /etc/pulse/config.yaml`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{app.JobHourly, app.JobDaily, app.JobWeekly, app.JobCleanup},
	RunE:      runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	job := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Schedule.Enabled = false

	a, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	summary, err := a.Aggregator.RunJob(context.Background(), job)
	printSummary(summary)
	if err != nil {
		return fmt.Errorf("%s job: %w", job, err)
	}
	return nil
}

func printSummary(s app.RunSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Job:\t%s\n", s.Job)
	if !s.Range.Start.IsZero() {
		fmt.Fprintf(w, "Range:\t%s - %s\n", s.Range.Start.Format("2006-01-02 15:04"), s.Range.End.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "Projects:\t%d\n", s.Projects)
	for _, p := range s.Failed {
		fmt.Fprintf(w, "%s Failed:\t%s\n", crossMark, p)
	}

	tables := make([]string, 0, len(s.Pruned))
	for table := range s.Pruned {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Fprintf(w, "Pruned %s:\t%s\n", table, humanize.Comma(s.Pruned[table]))
	}
	if len(s.Reports) > 0 {
		fmt.Fprintf(w, "Reports:\t%d\n", len(s.Reports))
	}
}
