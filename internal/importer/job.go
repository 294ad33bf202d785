package importer

import (
	"database/sql"
	"time"
)

// TargetKind selects where imported records land.
type TargetKind string

const (
	// TargetTable writes rows into a table created from the inferred schema.
	TargetTable TargetKind = "table"
	// TargetContent writes typed posts with custom fields.
	TargetContent TargetKind = "content"
)

// SyncMode controls how a run treats records already present.
type SyncMode string

const (
	// SyncAppend inserts every fetched record.
	SyncAppend SyncMode = "append"
	// SyncUpsert matches on UniqueField and updates existing entries.
	SyncUpsert SyncMode = "upsert"
)

// Job is a configured import: a source, a target, and the options that
// shape schema and mapping derivation.
type Job struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	SourceType   string         `json:"source_type"`
	SourceCfg    map[string]any `json:"source_config"`
	TargetKind   TargetKind     `json:"target_kind"`
	TargetName   string         `json:"target_name"`
	UniqueField  string         `json:"unique_field"`
	PKName       string         `json:"pk_name"`
	TitleField   string         `json:"title_field"`
	ContentField string         `json:"content_field"`
	DetectImages bool           `json:"detect_images"`
	MaxDepth     int            `json:"max_depth"`
	SyncMode     SyncMode       `json:"sync_mode"`

	TriggerType   string `json:"trigger_type"` // manual | schedule | file_watch
	TriggerConfig string `json:"trigger_config"`
	Enabled       bool   `json:"enabled"`

	LastRunAt  sql.NullTime `json:"last_run_at"`
	LastStatus string       `json:"last_status"`
	LastError  string       `json:"last_error"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// RunLog records one execution of a job.
type RunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Status      string    `json:"status"` // success | error
	RowsRead    int       `json:"rows_read"`
	RowsWritten int       `json:"rows_written"`
	Error       string    `json:"error"`
}

// RunResult is what a completed run reports back to the caller.
type RunResult struct {
	RowsRead    int      `json:"rows_read"`
	RowsWritten int      `json:"rows_written"`
	InsertedIDs []string `json:"inserted_ids"`
	Skipped     int      `json:"skipped"`
}

// JobStore is the persistence surface the engine and service need for
// jobs and their run history.
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	UpdateJobStatus(id, status, errMsg string) error
	DeleteJob(id string) error
	ListJobs() ([]Job, error)
	ListEnabledTriggeredJobs() ([]Job, error)
	CreateRunLog(l *RunLog) error
	ListRunLogs(jobID string, limit int) ([]RunLog, error)
}
