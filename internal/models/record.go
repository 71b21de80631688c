package models

import "time"

// MetricRecord is one per-tick, per-intersection sample. Records are
// append-only and their field names are identical for both controller types
// so the external evaluation stage can compare them directly.
type MetricRecord struct {
	RunID                string         `json:"run_id"`
	Controller           ControllerKind `json:"controller"`
	Tick                 int64          `json:"tick"`
	IntersectionID       string         `json:"intersection_id"`
	QueueLen             int            `json:"queue_len"`
	CumulativeWait       int64          `json:"cumulative_wait"`
	CumulativeThroughput int64          `json:"cumulative_throughput"`
}

// RunSummary contains the aggregate outcome of a single run. A summary is
// produced even when the run terminated early; Partial marks that case.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Job        string         `json:"job"`
	Controller ControllerKind `json:"controller"`
	RunIndex   int            `json:"run_index"`
	Seed       uint64         `json:"seed"`

	Ticks           int64 `json:"ticks"`
	VehiclesPassed  int64 `json:"vehicles_passed"`
	TotalThroughput int64 `json:"total_throughput"`
	DroppedVehicles int64 `json:"dropped_vehicles"`

	TotalWait int64   `json:"total_wait"`
	MeanWait  float64 `json:"mean_wait"`
	MaxQueue  int     `json:"max_queue"`
	MeanQueue float64 `json:"mean_queue"`

	LearningFaults int64 `json:"learning_faults,omitempty"`

	Partial   bool      `json:"partial"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Error *RunError `json:"error,omitempty"`
}

// JobResult aggregates the summaries of all runs executed for one job.
type JobResult struct {
	JobName          string         `json:"job_name"`
	Controller       ControllerKind `json:"controller"`
	TotalRuns        int            `json:"total_runs"`
	CompletedRuns    int            `json:"completed_runs"`
	FailedRuns       int            `json:"failed_runs"`
	SkippedRuns      int            `json:"skipped_runs"`
	Cancelled        bool           `json:"cancelled"`
	MeanVehicles     float64        `json:"mean_vehicles_passed"`
	MeanWait         float64        `json:"mean_wait"`
	TotalDurationSec float64        `json:"total_duration_sec"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at"`
	Runs             []RunSummary   `json:"runs"`
}
