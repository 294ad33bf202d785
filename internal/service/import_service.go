package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"tablemap/internal/importer"
	"tablemap/internal/mapping"
	"tablemap/internal/record"
	"tablemap/internal/schema"
	"tablemap/internal/source"
)

// ─────────────────────────────────────────────────────────────
// Import Service — business logic for import jobs
// ─────────────────────────────────────────────────────────────

// ImportService manages import jobs, scheduling, and file watching.
type ImportService struct {
	store       importer.JobStore
	engine      *importer.Engine
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewImportService creates an ImportService ready for use.
func NewImportService(store importer.JobStore, engine *importer.Engine) *ImportService {
	return &ImportService{store: store, engine: engine}
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateJobInput struct {
	Name          string         `json:"name"`
	SourceType    string         `json:"sourceType"`
	SourceConfig  map[string]any `json:"sourceConfig"`
	TargetKind    string         `json:"targetKind"`
	TargetName    string         `json:"targetName"`
	UniqueField   string         `json:"uniqueField"`
	PKName        string         `json:"pkName"`
	TitleField    string         `json:"titleField"`
	ContentField  string         `json:"contentField"`
	DetectImages  *bool          `json:"detectImages"`
	MaxDepth      *int           `json:"maxDepth"`
	SyncMode      string         `json:"syncMode"`
	TriggerType   string         `json:"triggerType"`
	TriggerConfig string         `json:"triggerConfig"`
	Enabled       bool           `json:"enabled"`
}

func (s *ImportService) CreateJob(ctx context.Context, input CreateJobInput) (*importer.Job, error) {
	if _, err := source.Get(input.SourceType); err != nil {
		return nil, err
	}
	if input.TargetName == "" {
		return nil, fmt.Errorf("targetName is required")
	}

	job := &importer.Job{
		Name:          input.Name,
		SourceType:    input.SourceType,
		SourceCfg:     input.SourceConfig,
		TargetKind:    importer.TargetKind(input.TargetKind),
		TargetName:    input.TargetName,
		UniqueField:   input.UniqueField,
		PKName:        input.PKName,
		TitleField:    input.TitleField,
		ContentField:  input.ContentField,
		DetectImages:  true,
		MaxDepth:      3,
		SyncMode:      importer.SyncMode(input.SyncMode),
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if input.DetectImages != nil {
		job.DetectImages = *input.DetectImages
	}
	if input.MaxDepth != nil {
		job.MaxDepth = *input.MaxDepth
	}
	if job.TargetKind == "" {
		job.TargetKind = importer.TargetTable
	}
	if job.PKName == "" {
		job.PKName = "id"
	}
	if job.SyncMode == "" {
		job.SyncMode = importer.SyncAppend
	}
	if job.TriggerType == "" {
		job.TriggerType = "manual"
	}

	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ImportService) GetJob(id string) (*importer.Job, error) {
	return s.store.GetJob(id)
}

func (s *ImportService) ListJobs() ([]importer.Job, error) {
	return s.store.ListJobs()
}

func (s *ImportService) UpdateJob(ctx context.Context, id string, input CreateJobInput) error {
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	job.Name = input.Name
	job.SourceType = input.SourceType
	job.SourceCfg = input.SourceConfig
	job.TargetKind = importer.TargetKind(input.TargetKind)
	job.TargetName = input.TargetName
	job.UniqueField = input.UniqueField
	job.PKName = input.PKName
	job.TitleField = input.TitleField
	job.ContentField = input.ContentField
	if input.DetectImages != nil {
		job.DetectImages = *input.DetectImages
	}
	if input.MaxDepth != nil {
		job.MaxDepth = *input.MaxDepth
	}
	job.SyncMode = importer.SyncMode(input.SyncMode)
	job.TriggerType = input.TriggerType
	job.TriggerConfig = input.TriggerConfig
	job.Enabled = input.Enabled

	if err := s.store.UpdateJob(job); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *ImportService) DeleteJob(ctx context.Context, id string) error {
	err := s.store.DeleteJob(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single import job synchronously.
func (s *ImportService) RunJob(ctx context.Context, id string) (*importer.RunResult, error) {
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s is already running", id)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	s.store.UpdateJobStatus(id, "running", "")

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine.Run(runCtx, job)

	s.store.CreateRunLog(importer.NewRunLog(id, start, result, runErr))

	if runErr != nil {
		s.store.UpdateJobStatus(id, "error", runErr.Error())
		return result, runErr
	}
	s.store.UpdateJobStatus(id, "success", "")
	log.Info().
		Str("job", id).
		Int("read", result.RowsRead).
		Int("written", result.RowsWritten).
		Int("skipped", result.Skipped).
		Msg("import finished")
	return result, nil
}

// ListSources returns the available source descriptors.
func (s *ImportService) ListSources() []source.Spec {
	return source.List()
}

// ListRunLogs returns the last 50 run logs for a job.
func (s *ImportService) ListRunLogs(jobID string) ([]importer.RunLog, error) {
	return s.store.ListRunLogs(jobID, 50)
}

// ── Preview ────────────────────────────────────────────────

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Schema  *schema.Schema   `json:"schema"`
	Mapping *mapping.Mapping `json:"mapping"`
	Records []*record.Record `json:"records"`
}

// PreviewSource fetches a sample and shows the schema and mapping an
// import would derive, without writing anything.
func (s *ImportService) PreviewSource(ctx context.Context, sourceType, cfgJSON string) (*PreviewResult, error) {
	var cfg map[string]any
	if cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return nil, fmt.Errorf("parse source config: %w", err)
		}
	}

	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	job := &importer.Job{
		SourceType:   sourceType,
		SourceCfg:    cfg,
		PKName:       "id",
		DetectImages: true,
		MaxDepth:     3,
	}
	recs, sc, m, err := s.engine.Preview(previewCtx, job, 10)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: sc, Mapping: m, Records: recs}, nil
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from the enabled triggered jobs.
func (s *ImportService) RestartWatchers(ctx context.Context) {
	s.stopWatchers()

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		log.Error().Err(err).Msg("watcher: failed to list jobs")
		return
	}

	// ── Cron jobs ──
	var scheduled []importer.Job
	for _, j := range jobs {
		if j.TriggerType == "schedule" && j.TriggerConfig != "" {
			scheduled = append(scheduled, j)
		}
	}
	if len(scheduled) > 0 {
		c := cron.New()
		for _, j := range scheduled {
			jid := j.ID
			_, err := c.AddFunc(j.TriggerConfig, func() {
				log.Info().Str("job", jid).Msg("cron: running job")
				if _, err := s.RunJob(ctx, jid); err != nil {
					log.Error().Err(err).Str("job", jid).Msg("cron: job failed")
				}
			})
			if err != nil {
				log.Error().Err(err).Str("job", j.ID).Str("expr", j.TriggerConfig).Msg("cron: invalid expression")
			}
		}
		c.Start()
		s.cronSched = c
		log.Info().Int("count", len(scheduled)).Msg("cron: scheduled jobs")
	}

	// ── File watchers ──
	var watched []importer.Job
	for _, j := range jobs {
		if j.TriggerType == "file_watch" && j.TriggerConfig != "" {
			watched = append(watched, j)
		}
	}
	if len(watched) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("watcher: failed to create watcher")
		return
	}
	s.watcher = watcher

	pathToJob := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, j := range watched {
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			log.Error().Err(err).Str("path", j.TriggerConfig).Msg("watcher: bad path")
			continue
		}
		pathToJob[absPath] = j.ID

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Error().Err(err).Str("dir", dir).Msg("watcher: failed to watch dir")
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				jobID, ok := pathToJob[absPath]
				if !ok {
					continue
				}
				// Debounce bursts of writes to the same file.
				if t, exists := timers[jobID]; exists {
					t.Stop()
				}
				jid := jobID
				timers[jobID] = time.AfterFunc(500*time.Millisecond, func() {
					log.Info().Str("job", jid).Str("path", absPath).Msg("watcher: file changed, running job")
					if _, err := s.RunJob(ctx, jid); err != nil {
						log.Error().Err(err).Str("job", jid).Msg("watcher: run failed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("watcher: error")
			}
		}
	}()

	log.Info().Int("count", len(pathToJob)).Msg("watcher: watching files")
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ImportService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ImportService) Stop() {
	s.stopWatchers()
}

func (s *ImportService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
