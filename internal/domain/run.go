package domain

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// PipelineRun records one execution of the batch pipeline.
// Corresponds to pipeline_runs table in PostgreSQL.
type PipelineRun struct {
	RunID           string    // UUID
	Status          RunStatus // RUNNING | SUCCEEDED | FAILED
	StartedAt       int64     // Unix timestamp in milliseconds
	FinishedAt      *int64    // NULL while running
	IndicesFetched  int       // indices successfully acquired
	RowsAppended    int       // new aligned rows persisted
	TargetsAnalyzed int       // targets with conclusions produced
	ReportPath      *string   // rendered report, NULL if the report stage did not run
	Error           *string   // failure diagnostic, NULL on success
}
