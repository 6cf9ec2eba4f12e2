package domain

import (
	"context"
	"time"
)

// FileNotification announces a new forecast file, e.g. a blob-created event
// read from the trigger topic.
type FileNotification struct {
	Path      string
	Name      string
	Key       []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// WriteCounts tallies one table's chunked insert pass.
type WriteCounts struct {
	Submitted int64 `json:"submitted"`
	Inserted  int64 `json:"inserted"`
	Skipped   int64 `json:"skipped"`
	Chunks    int   `json:"chunks"`
}

// Add folds one committed chunk into the counts.
func (c *WriteCounts) Add(submitted, inserted int64) {
	c.Submitted += submitted
	c.Inserted += inserted
	c.Skipped += submitted - inserted
	c.Chunks++
}

// LatestView describes the refreshed latest-prediction view.
type LatestView struct {
	Date time.Time
	Rows int64
}

// SyncReport summarises one synced forecast file. It is published once the
// latest view has been refreshed.
type SyncReport struct {
	RunID       string      `json:"run_id"`
	File        string      `json:"file"`
	Cells       WriteCounts `json:"cells"`
	Predictions WriteCounts `json:"predictions"`
	Unresolved  int         `json:"unresolved"`
	LatestDate  string      `json:"latest_date,omitempty"`
	LatestRows  int64       `json:"latest_rows"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

// NewSyncReport starts a report for file.
func NewSyncReport(runID, file string) *SyncReport {
	return &SyncReport{RunID: runID, File: file, StartedAt: now()}
}

// Complete stamps the completion time and the refreshed view summary.
func (r *SyncReport) Complete(view LatestView) {
	if !view.Date.IsZero() {
		r.LatestDate = view.Date.Format(time.DateOnly)
	}
	r.LatestRows = view.Rows
	r.CompletedAt = now()
}
