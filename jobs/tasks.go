package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPayablesIntegrityScan verifies that committed payable rows still
	// sum to their invoice totals.
	TaskPayablesIntegrityScan = "payables:integrity_scan"
	// TaskAllocationBacklogScan reports conciliated invoices whose
	// allocation has been pending for too long.
	TaskAllocationBacklogScan = "allocation:backlog_scan"
)

// IntegrityScanPayload tunes the payables integrity scan.
type IntegrityScanPayload struct {
	// ToleranceCents is the accepted absolute drift per invoice, in
	// hundredths. Zero means the default of one cent.
	ToleranceCents int `json:"toleranceCents"`
}

// NewIntegrityScanTask builds a payables integrity scan task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayablesIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// BacklogScanPayload tunes the allocation backlog scan.
type BacklogScanPayload struct {
	OlderThanDays int `json:"olderThanDays"`
}

// NewBacklogScanTask builds an allocation backlog scan task.
func NewBacklogScanTask(payload BacklogScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAllocationBacklogScan, body, asynq.Queue(QueueDefault)), nil
}
