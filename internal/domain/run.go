package domain

import "time"

// RunStatus is the terminal (or in-flight) state of a pipeline run.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
	RunPartial RunStatus = "PARTIAL"
)

// PipelineRun records one stage invocation. Corresponds to pipeline_runs,
// the single surface external observers use to judge pipeline health.
type PipelineRun struct {
	RunID   string
	Stage   string
	Filters map[string]string // filters the invocation was scoped to

	Processed int64
	Created   int64
	Updated   int64
	Skipped   int64

	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}
