// Package scheduler runs crawl batches on a cron schedule until
// interrupted.
package scheduler

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arbminer/arbminer/cmd/common"
	"github.com/arbminer/arbminer/internal/crawler"
)

var (
	cronSpec   string
	runOnStart bool
)

// Command returns the scheduler command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run crawl batches on a cron schedule",
		Long: `Scheduler keeps the process alive and triggers a crawl batch on the
configured cron expression (standard 5-field format). Overlapping runs are
skipped so a slow batch never stacks on top of the next one.`,
		RunE: runScheduler,
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "cron expression (default from scheduler.cron config)")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run one batch immediately before scheduling")

	return cmd
}

func runScheduler(cmd *cobra.Command, _ []string) error {
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

	spec := cronSpec
	if spec == "" {
		spec = viper.GetString("scheduler.cron")
	}

	var running sync.Mutex
	runBatch := func() {
		if !running.TryLock() {
			deps.Log.Warn("previous batch still running, skipping this trigger")
			return
		}
		defer running.Unlock()

		opts := crawler.Options{
			MaxTasks:     deps.Cfg.Crawler.MaxTasksPerRun,
			MaxItems:     deps.Cfg.Crawler.MaxItemsPerTask,
			MaxPages:     deps.Cfg.Crawler.MaxPagesPerTask,
			SleepBetween: deps.Cfg.Crawler.SleepBetweenTask,
		}
		report, err := machine.Run(ctx, opts)
		if err != nil {
			deps.Log.Error("scheduled crawl batch failed", "error", err)
		}
		if report != nil {
			deps.RecordRun(ctx, report, opts)
			deps.Log.Info("scheduled crawl batch finished",
				"tasks_run", report.TasksRun,
				"items_saved", report.ItemsSaved,
				"stop_reason", report.StopReason)
		}
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, runBatch); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	deps.Log.Info("scheduler started", "cron", spec)
	c.Start()

	if runOnStart {
		runBatch()
	}

	<-ctx.Done()

	deps.Log.Info("scheduler stopping")
	<-c.Stop().Done()
	running.Lock() // wait for an in-flight batch
	running.Unlock()
	return nil
}
