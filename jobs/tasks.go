package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingIntegrityScan checks the ledger invariants: assignment claim
	// uniqueness and snapshot drift.
	TaskBillingIntegrityScan = "billing:integrity_scan"
	// TaskSummaryWarmup pre-computes the month-to-date financial summary.
	TaskSummaryWarmup = "summary:warmup"
)

// IntegrityScanPayload configures a ledger integrity scan.
type IntegrityScanPayload struct {
	// CheckSnapshots recomputes locked jobs' revenue from live inputs and
	// reports drift. Off by default: drift is expected after post-lock invoice
	// edits and only interesting when auditing.
	CheckSnapshots bool `json:"check_snapshots"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingIntegrityScan, data), nil
}

// SummaryWarmupPayload configures a summary warmup run.
type SummaryWarmupPayload struct {
	// Months is how many whole months back from the current one to warm, in
	// addition to month-to-date. Zero warms only the current month.
	Months int `json:"months"`
}

// NewSummaryWarmupTask constructs an Asynq task.
func NewSummaryWarmupTask(payload SummaryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data), nil
}
