package domain

import "time"

// Stop reasons recorded by the crawler state machine.
const (
	StopReasonCompletedBatch = "completed-batch"
	StopReasonQuotaExceeded  = "quota-exceeded"
	StopReasonNoTasks        = "no-tasks"
	StopReasonCancelled      = "cancelled"
)

// CrawlerState is the rotation cursor persisted between crawler
// invocations. It is the only mutable cross-invocation entity in the
// core; LastTaskIndex is -1 when the crawler has never run.
type CrawlerState struct {
	LastTaskIndex  int        `json:"last_task_index"`
	TotalTasks     int        `json:"total_tasks"`
	LastRunAt      *time.Time `json:"last_run_at"`
	LastStopReason *string    `json:"last_stop_reason"`
}

// DiscoveryStats are the exact per-task counters reported in run
// summaries. Counters are incremented once per item/page outcome, never
// across retries.
type DiscoveryStats struct {
	CatalogSeen      int    `json:"catalog_seen"`
	WithPrice        int    `json:"with_price"`
	Kept             int    `json:"kept"`
	SkippedDuplicate int    `json:"skipped_duplicate"`
	SkippedNoPrice   int    `json:"skipped_no_price"`
	SkippedPrice     int    `json:"skipped_price_filter"`
	SkippedOffer     int    `json:"skipped_offer_filter"`
	SkippedDemand    int    `json:"skipped_demand_filter"`
	PriceLookups     int    `json:"price_lookups"`
	ErrorsAPI        int    `json:"errors_api"`
	LastError        string `json:"last_error,omitempty"`
}

// Add accumulates another task's counters into s.
func (s *DiscoveryStats) Add(o DiscoveryStats) {
	s.CatalogSeen += o.CatalogSeen
	s.WithPrice += o.WithPrice
	s.Kept += o.Kept
	s.SkippedDuplicate += o.SkippedDuplicate
	s.SkippedNoPrice += o.SkippedNoPrice
	s.SkippedPrice += o.SkippedPrice
	s.SkippedOffer += o.SkippedOffer
	s.SkippedDemand += o.SkippedDemand
	s.PriceLookups += o.PriceLookups
	s.ErrorsAPI += o.ErrorsAPI
	if o.LastError != "" {
		s.LastError = o.LastError
	}
}

// CrawlerRun is one recorded crawler invocation.
type CrawlerRun struct {
	ID                  string         `db:"id"                     json:"id"`
	MarketplaceID       string         `db:"marketplace_id"         json:"marketplace_id"`
	StartedAt           time.Time      `db:"started_at"             json:"started_at"`
	EndedAt             *time.Time     `db:"ended_at"               json:"ended_at"`
	Status              string         `db:"status"                 json:"status"`
	StopReason          *string        `db:"stop_reason"            json:"stop_reason"`
	RootFilter          *string        `db:"root_filter"            json:"root_filter"`
	MaxTasks            int            `db:"max_tasks"              json:"max_tasks"`
	MaxItems            int            `db:"max_items"              json:"max_items"`
	TasksTotal          int            `db:"tasks_total"            json:"tasks_total"`
	TasksRun            int            `db:"tasks_run"              json:"tasks_run"`
	LastTaskIndexBefore int            `db:"last_task_index_before" json:"last_task_index_before"`
	LastTaskIndexAfter  *int           `db:"last_task_index_after"  json:"last_task_index_after"`
	Stats               DiscoveryStats `db:"-"                      json:"stats"`
	ErrorMessage        *string        `db:"error_message"          json:"error_message"`
}
