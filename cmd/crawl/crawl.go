// Package crawl implements the batch crawl command: it rotates through
// the task list, mines discovered products and persists the rotation
// cursor for the next invocation.
package crawl

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/arbminer/arbminer/cmd/common"
	"github.com/arbminer/arbminer/internal/crawler"
)

var (
	maxTasks   int
	maxItems   int
	maxPages   int
	sleepDur   time.Duration
	rootFilter []string
	dryRun     bool
	resetState bool
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl batch over the task rotation",
		Long: `Crawl runs a batch of discovery tasks, resuming after the last task
completed by the previous invocation. The rotation cursor is persisted so
repeated runs cycle through the whole task list.`,
		RunE: runCrawl,
	}

	cmd.Flags().IntVar(&maxTasks, "max-tasks", 0, "tasks per run (0 uses config)")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "items per task (0 uses config)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "pages per task (0 uses config)")
	cmd.Flags().DurationVar(&sleepDur, "sleep", 0, "pause between tasks (0 uses config)")
	cmd.Flags().StringSliceVar(&rootFilter, "root", nil, "restrict to these root categories")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan the batch without network or state changes")
	cmd.Flags().BoolVar(&resetState, "reset-state", false, "restart the rotation from the first task")

	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := common.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	machine, err := deps.Machine()
	if err != nil {
		return err
	}

	opts := crawler.Options{
		MaxTasks:     maxTasks,
		MaxItems:     maxItems,
		MaxPages:     maxPages,
		SleepBetween: sleepDur,
		RootFilter:   rootFilter,
		DryRun:       dryRun,
		ResetState:   resetState,
	}
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = deps.Cfg.Crawler.MaxTasksPerRun
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = deps.Cfg.Crawler.MaxItemsPerTask
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = deps.Cfg.Crawler.MaxPagesPerTask
	}
	if opts.SleepBetween <= 0 {
		opts.SleepBetween = deps.Cfg.Crawler.SleepBetweenTask
	}

	report, err := machine.Run(ctx, opts)
	if report != nil {
		renderReport(report, opts)
		if !opts.DryRun {
			deps.RecordRun(ctx, report, opts)
		}
	}
	if err != nil {
		return fmt.Errorf("crawl batch failed: %w", err)
	}
	return nil
}

func renderReport(r *crawler.Report, opts crawler.Options) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Task", "Keyword"})
	for i, task := range r.PlannedTasks {
		t.AppendRow(table.Row{i + 1, task.Label(), task.Keyword})
	}
	mode := "Planned tasks"
	if opts.DryRun {
		mode = "Planned tasks (dry run)"
	}
	fmt.Fprintf(os.Stdout, "\n%s:\n", mode)
	t.Render()

	s := table.NewWriter()
	s.SetOutputMirror(os.Stdout)
	s.SetStyle(table.StyleRounded)
	s.AppendHeader(table.Row{"Counter", "Value"})
	s.AppendRows([]table.Row{
		{"tasks run", r.TasksRun},
		{"catalog seen", r.Stats.CatalogSeen},
		{"with price", r.Stats.WithPrice},
		{"kept", r.Stats.Kept},
		{"items saved", r.ItemsSaved},
		{"skipped duplicate", r.Stats.SkippedDuplicate},
		{"skipped no price", r.Stats.SkippedNoPrice},
		{"skipped price filter", r.Stats.SkippedPrice},
		{"skipped offer filter", r.Stats.SkippedOffer},
		{"skipped demand filter", r.Stats.SkippedDemand},
		{"price lookups", r.Stats.PriceLookups},
		{"API errors", r.Stats.ErrorsAPI},
	})
	s.AppendFooter(table.Row{"stop reason", r.StopReason})
	fmt.Fprintf(os.Stdout, "\nRun summary (%s):\n", r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
	s.Render()

	fmt.Fprintf(os.Stdout, "\nRotation cursor: %d/%d -> %d/%d\n",
		r.StateBefore.LastTaskIndex, r.StateBefore.TotalTasks,
		r.State.LastTaskIndex, r.State.TotalTasks)
	if r.Stats.LastError != "" {
		fmt.Fprintf(os.Stdout, "Last error: %s\n", r.Stats.LastError)
	}
}
