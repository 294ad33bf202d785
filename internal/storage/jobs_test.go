package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablemap/internal/importer"
	"tablemap/internal/storage"
)

func TestJobStoreCRUD(t *testing.T) {
	db := openTestDB(t)
	js := storage.NewJobStore(db)

	job := &importer.Job{
		Name:       "products",
		SourceType: "http",
		SourceCfg:  map[string]any{"url": "https://api.example.com/items"},
		TargetKind: importer.TargetTable,
		TargetName: "products",
		PKName:     "id",
		MaxDepth:   3,
		SyncMode:   importer.SyncAppend,

		TriggerType: "manual",
		Enabled:     true,
	}
	require.NoError(t, js.CreateJob(job))
	require.NotEmpty(t, job.ID)

	got, err := js.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "products", got.Name)
	assert.Equal(t, importer.TargetTable, got.TargetKind)
	assert.Equal(t, "https://api.example.com/items", got.SourceCfg["url"])
	assert.Equal(t, 3, got.MaxDepth)

	got.Name = "products-v2"
	got.SyncMode = importer.SyncUpsert
	require.NoError(t, js.UpdateJob(got))

	got, err = js.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "products-v2", got.Name)
	assert.Equal(t, importer.SyncUpsert, got.SyncMode)

	require.NoError(t, js.UpdateJobStatus(job.ID, "success", ""))
	got, err = js.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", got.LastStatus)
	assert.True(t, got.LastRunAt.Valid)

	jobs, err := js.ListJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	require.NoError(t, js.DeleteJob(job.ID))
	_, err = js.GetJob(job.ID)
	assert.Error(t, err)
}

func TestJobStoreListEnabledTriggeredJobs(t *testing.T) {
	db := openTestDB(t)
	js := storage.NewJobStore(db)

	mk := func(name, trigger string, enabled bool) {
		require.NoError(t, js.CreateJob(&importer.Job{
			Name:        name,
			SourceType:  "json_file",
			TargetKind:  importer.TargetTable,
			TargetName:  name,
			TriggerType: trigger,
			Enabled:     enabled,
		}))
	}
	mk("manual", "manual", true)
	mk("cron", "schedule", true)
	mk("watch", "file_watch", true)
	mk("disabled", "schedule", false)

	jobs, err := js.ListEnabledTriggeredJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "cron", jobs[0].Name)
	assert.Equal(t, "watch", jobs[1].Name)
}

func TestJobStoreRunLogs(t *testing.T) {
	db := openTestDB(t)
	js := storage.NewJobStore(db)

	job := &importer.Job{Name: "j", SourceType: "http", TargetKind: importer.TargetTable, TargetName: "t"}
	require.NoError(t, js.CreateJob(job))

	start := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, js.CreateRunLog(&importer.RunLog{
			JobID:       job.ID,
			StartedAt:   start.Add(time.Duration(i) * time.Second),
			FinishedAt:  start.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
			Status:      "success",
			RowsRead:    10,
			RowsWritten: 10,
		}))
	}

	logs, err := js.ListRunLogs(job.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.True(t, logs[0].StartedAt.After(logs[1].StartedAt))

	// Deleting the job removes its logs.
	require.NoError(t, js.DeleteJob(job.ID))
	logs, err = js.ListRunLogs(job.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
