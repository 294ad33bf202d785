package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tablemap/internal/importer"
)

// JobStore implements persistence for import jobs and run logs.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

var _ importer.JobStore = (*JobStore)(nil)

const jobColumns = `id, name, source_type, source_config, target_kind, target_name,
	 unique_field, pk_name, title_field, content_field, detect_images, max_depth,
	 sync_mode, trigger_type, trigger_config, enabled,
	 last_run_at, last_status, last_error, created_at, updated_at`

// ── Job CRUD ───────────────────────────────────────────────

func (s *JobStore) CreateJob(job *importer.Job) error {
	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	srcCfg, _ := json.Marshal(job.SourceCfg)

	_, err := s.db.conn.Exec(
		`INSERT INTO import_jobs (id, name, source_type, source_config, target_kind, target_name,
		 unique_field, pk_name, title_field, content_field, detect_images, max_depth,
		 sync_mode, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.SourceType, string(srcCfg), job.TargetKind, job.TargetName,
		job.UniqueField, job.PKName, job.TitleField, job.ContentField, job.DetectImages, job.MaxDepth,
		job.SyncMode, job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *JobStore) GetJob(id string) (*importer.Job, error) {
	row := s.db.conn.QueryRow(
		`SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("import job not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) UpdateJob(job *importer.Job) error {
	job.UpdatedAt = time.Now()
	srcCfg, _ := json.Marshal(job.SourceCfg)

	_, err := s.db.conn.Exec(
		`UPDATE import_jobs SET name=?, source_type=?, source_config=?, target_kind=?,
		 target_name=?, unique_field=?, pk_name=?, title_field=?, content_field=?,
		 detect_images=?, max_depth=?, sync_mode=?, trigger_type=?, trigger_config=?,
		 enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceType, string(srcCfg), job.TargetKind,
		job.TargetName, job.UniqueField, job.PKName, job.TitleField, job.ContentField,
		job.DetectImages, job.MaxDepth, job.SyncMode, job.TriggerType, job.TriggerConfig,
		job.Enabled, job.UpdatedAt, job.ID,
	)
	return err
}

func (s *JobStore) UpdateJobStatus(id, status, errMsg string) error {
	_, err := s.db.conn.Exec(
		`UPDATE import_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		time.Now(), status, errMsg, time.Now(), id,
	)
	return err
}

func (s *JobStore) DeleteJob(id string) error {
	// Run logs first, they reference the job.
	if _, err := s.db.conn.Exec(`DELETE FROM import_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.conn.Exec(`DELETE FROM import_jobs WHERE id = ?`, id)
	return err
}

func (s *JobStore) ListJobs() ([]importer.Job, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM import_jobs ORDER BY created_at ASC`)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or
// file-watch trigger, for the service to arm on startup.
func (s *JobStore) ListEnabledTriggeredJobs() ([]importer.Job, error) {
	return s.queryJobs(
		`SELECT ` + jobColumns + ` FROM import_jobs
		 WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		 ORDER BY created_at ASC`)
}

func (s *JobStore) queryJobs(query string, args ...any) ([]importer.Job, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []importer.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(scan func(...any) error) (*importer.Job, error) {
	job := &importer.Job{}
	var srcCfg string
	err := scan(
		&job.ID, &job.Name, &job.SourceType, &srcCfg, &job.TargetKind, &job.TargetName,
		&job.UniqueField, &job.PKName, &job.TitleField, &job.ContentField,
		&job.DetectImages, &job.MaxDepth, &job.SyncMode, &job.TriggerType,
		&job.TriggerConfig, &job.Enabled,
		&job.LastRunAt, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(srcCfg), &job.SourceCfg)
	return job, nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *JobStore) CreateRunLog(l *importer.RunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO import_run_logs (id, job_id, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.JobID, l.StartedAt, l.FinishedAt, l.Status, l.RowsRead, l.RowsWritten, l.Error,
	)
	return err
}

func (s *JobStore) ListRunLogs(jobID string, limit int) ([]importer.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, rows_read, rows_written, error
		 FROM import_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []importer.RunLog
	for rows.Next() {
		var l importer.RunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
