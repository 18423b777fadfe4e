package crawler

import (
	"context"
	"time"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
	"github.com/arbminer/arbminer/internal/spapi"
	"github.com/arbminer/arbminer/internal/tasks"
)

// Discovery is the per-task mining operation the machine drives.
type Discovery interface {
	Discover(ctx context.Context, task domain.Task, maxItems, maxPages int) ([]domain.DiscoveredItem, domain.DiscoveryStats, error)
}

// Sink receives the kept items of each completed task. A nil sink
// discards them (dry storage, results still appear in the report).
type Sink interface {
	SaveItems(ctx context.Context, items []domain.DiscoveredItem) (int, error)
}

// Options configure one crawler invocation.
type Options struct {
	MaxTasks     int
	MaxItems     int
	MaxPages     int
	SleepBetween time.Duration
	RootFilter   []string
	DryRun       bool
	ResetState   bool
}

// Report summarizes one invocation. A run always ends with a report,
// even when it stopped early.
type Report struct {
	StartedAt    time.Time
	EndedAt      time.Time
	PlannedTasks []domain.Task
	TasksRun     int
	ItemsSaved   int
	StopReason   string
	Stats        domain.DiscoveryStats
	State        domain.CrawlerState
	StateBefore  domain.CrawlerState
}

// Machine rotates through the task list across invocations. Each
// run starts right after the last completed task, wraps past the end
// of the list, and stops early when the API quota is exhausted so the
// interrupted task is retried next run.
type Machine struct {
	allTasks  []domain.Task
	store     *StateStore
	discovery Discovery
	sink      Sink
	log       logger.Interface
	metrics   *metrics.Metrics

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Machine over the flattened task list.
func New(taskList []domain.Task, store *StateStore, discovery Discovery, sink Sink, log logger.Interface, m *metrics.Metrics) *Machine {
	return &Machine{
		allTasks:  taskList,
		store:     store,
		discovery: discovery,
		sink:      sink,
		log:       log.WithComponent("crawler"),
		metrics:   m,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Run executes one batch. Dry-run performs the rotation arithmetic
// and reports the intended tasks without touching the network or the
// persisted state.
func (m *Machine) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{StartedAt: m.now()}

	taskList := tasks.FilterRoots(m.allTasks, opts.RootFilter)
	total := len(taskList)

	// Every state write below happens under the single-writer lock.
	// Dry run never writes, so it never locks.
	if !opts.DryRun {
		if err := m.store.Lock(); err != nil {
			return report, err
		}
		defer m.store.Unlock()
	}

	if opts.ResetState && !opts.DryRun {
		if err := m.store.Reset(); err != nil {
			return report, err
		}
	}

	state, err := m.store.Load()
	if err != nil {
		return report, err
	}
	report.StateBefore = state

	if total == 0 {
		report.StopReason = domain.StopReasonNoTasks
		report.EndedAt = m.now()
		m.log.Warn("no tasks to run")
		if !opts.DryRun {
			state.TotalTasks = 0
			m.finishState(&state, domain.StopReasonNoTasks)
			if err := m.store.Save(state); err != nil {
				return report, err
			}
		}
		report.State = state
		m.metrics.RecordCrawlerRun(report.StopReason)
		return report, nil
	}

	// A changed task list invalidates the cursor: restart rotation.
	if state.TotalTasks != total {
		if state.TotalTasks != 0 {
			m.log.Info("task list size changed, resetting rotation",
				"previous", state.TotalTasks, "current", total)
		}
		state.LastTaskIndex = -1
		state.TotalTasks = total
	}

	maxTasks := opts.MaxTasks
	if maxTasks <= 0 || maxTasks > total {
		maxTasks = total
	}

	startIndex := (state.LastTaskIndex + 1) % total
	planned := make([]int, 0, maxTasks)
	for i := 0; i < maxTasks; i++ {
		planned = append(planned, (startIndex+i)%total)
	}
	for _, idx := range planned {
		report.PlannedTasks = append(report.PlannedTasks, taskList[idx])
	}

	if opts.DryRun {
		for n, idx := range planned {
			m.log.Info("dry-run task",
				"position", n+1, "index", idx, "task", taskList[idx].Label())
		}
		report.StopReason = domain.StopReasonCompletedBatch
		report.State = state
		report.EndedAt = m.now()
		return report, nil
	}

	stopReason := domain.StopReasonCompletedBatch

runLoop:
	for n, idx := range planned {
		if ctx.Err() != nil {
			stopReason = domain.StopReasonCancelled
			break
		}

		task := taskList[idx]
		m.log.Info("running task",
			"position", n+1, "of", len(planned), "index", idx, "task", task.Label())

		items, stats, err := m.discovery.Discover(ctx, task, opts.MaxItems, opts.MaxPages)
		report.Stats.Add(stats)
		report.TasksRun++

		switch {
		case err == nil:
		case spapi.IsQuotaExceeded(err):
			// Persist the attempted index so the next run retries
			// this task.
			state.LastTaskIndex = idx
			stopReason = domain.StopReasonQuotaExceeded
			m.log.Warn("quota exhausted, stopping batch", "task", task.Label())
			break runLoop
		case ctx.Err() != nil:
			stopReason = domain.StopReasonCancelled
			break runLoop
		default:
			// A failed task is logged and skipped; the batch goes on.
			m.log.Error("task failed, skipping", "task", task.Label(), "error", err)
			state.LastTaskIndex = idx
			continue
		}

		if len(items) > 0 && m.sink != nil {
			saved, err := m.sink.SaveItems(ctx, items)
			if err != nil {
				m.log.Error("failed to store items, keeping crawl result",
					"task", task.Label(), "items", len(items), "error", err)
			} else {
				report.ItemsSaved += saved
			}
		}

		state.LastTaskIndex = idx
		m.log.Info("task done",
			"task", task.Label(), "kept", stats.Kept, "catalog_seen", stats.CatalogSeen)

		if n+1 < len(planned) && opts.SleepBetween > 0 {
			m.sleep(opts.SleepBetween)
		}
	}

	m.finishState(&state, stopReason)
	if err := m.store.Save(state); err != nil {
		return report, err
	}

	report.StopReason = stopReason
	report.State = state
	report.EndedAt = m.now()
	m.metrics.RecordCrawlerRun(stopReason)

	m.log.Info("batch finished",
		"stop_reason", stopReason,
		"tasks_run", report.TasksRun,
		"kept", report.Stats.Kept,
		"errors_api", report.Stats.ErrorsAPI,
		"last_task_index", state.LastTaskIndex)

	return report, nil
}

// finishState stamps the fields persisted on every exit path.
func (m *Machine) finishState(state *domain.CrawlerState, stopReason string) {
	now := m.now()
	state.LastRunAt = &now
	reason := stopReason
	state.LastStopReason = &reason
}
