package models

import "time"

// StageRun is one stage execution inside a pipeline run, kept for tuning.
type StageRun struct {
	RunID      string
	PipelineID string
	Stage      string
	Attempts   int
	Outcome    string // ok, fallback, failed
	Error      string
	StartedAt  time.Time
	Duration   time.Duration
}
