package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tablemap/internal/infer"
	"tablemap/internal/mapping"
	"tablemap/internal/record"
	"tablemap/internal/schema"
	"tablemap/internal/source"
)

// ── Destinations ───────────────────────────────────────────
// The engine writes through these; the storage package implements them.

// TableDestination writes raw records into a schema-derived table.
type TableDestination interface {
	EnsureTable(ctx context.Context, name string, sc *schema.Schema) error
	BulkInsert(ctx context.Context, table string, sc *schema.Schema, recs []*record.Record) (int, []int64, error)
}

// ContentDestination writes transformed records as typed posts.
type ContentDestination interface {
	FindExisting(ctx context.Context, postType, field string, value record.Value) (string, error)
	Upsert(ctx context.Context, postType, id string, rec *record.Record) (string, error)
	EnsureFieldDefinition(ctx context.Context, postType, name string, t infer.StorageType) error
}

// ── Engine ─────────────────────────────────────────────────
// Orchestrates one run: fetch → derive schema/mapping from the first
// record → apply to every record → write. The engine itself is
// synchronous and holds no state between runs.

type Engine struct {
	Tables  TableDestination
	Content ContentDestination
}

// Preview fetches up to maxRows records and derives the schema and
// mapping the first record would produce, without writing anything.
func (e *Engine) Preview(ctx context.Context, job *Job, maxRows int) ([]*record.Record, *schema.Schema, *mapping.Mapping, error) {
	src, err := source.Get(job.SourceType)
	if err != nil {
		return nil, nil, nil, err
	}

	recs, err := source.ReadAll(ctx, src, source.Config(job.SourceCfg))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read: %w", err)
	}
	if maxRows > 0 && len(recs) > maxRows {
		recs = recs[:maxRows]
	}
	if len(recs) == 0 {
		return nil, nil, nil, nil
	}

	sc, err := schema.Build(recs[0], job.PKName, infer.TypeInteger)
	if err != nil {
		return recs, nil, nil, err
	}
	m := mapping.Generate(recs[0], mappingOptions(job))
	return recs, sc, m, nil
}

// Run executes a job end-to-end. The schema and mapping are derived
// once, from the first fetched record, and applied to the whole batch.
func (e *Engine) Run(ctx context.Context, job *Job) (*RunResult, error) {
	src, err := source.Get(job.SourceType)
	if err != nil {
		return nil, err
	}

	recs, err := source.ReadAll(ctx, src, source.Config(job.SourceCfg))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	result := &RunResult{RowsRead: len(recs)}
	if len(recs) == 0 {
		// An empty source is a successful no-op, not a failure.
		return result, nil
	}

	switch job.TargetKind {
	case TargetContent:
		err = e.runContent(ctx, job, recs, result)
	default:
		err = e.runTable(ctx, job, recs, result)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// runTable derives a column schema from the first record, creates the
// table if needed, and bulk-inserts the batch in one transaction.
func (e *Engine) runTable(ctx context.Context, job *Job, recs []*record.Record, result *RunResult) error {
	if job.SyncMode == SyncUpsert {
		return fmt.Errorf("sync mode %q requires a content target", job.SyncMode)
	}

	sc, err := schema.Build(recs[0], job.PKName, infer.TypeInteger)
	if err != nil {
		return fmt.Errorf("derive schema: %w", err)
	}
	if err := e.Tables.EnsureTable(ctx, job.TargetName, sc); err != nil {
		return err
	}

	n, ids, err := e.Tables.BulkInsert(ctx, job.TargetName, sc, recs)
	if err != nil {
		return err
	}
	result.RowsWritten = n
	for _, id := range ids {
		result.InsertedIDs = append(result.InsertedIDs, strconv.FormatInt(id, 10))
	}
	return nil
}

// runContent generates a mapping from the first record, registers field
// definitions for the target type, and upserts each transformed record.
// A failing record is logged and skipped; the batch continues.
func (e *Engine) runContent(ctx context.Context, job *Job, recs []*record.Record, result *RunResult) error {
	m := mapping.Generate(recs[0], mappingOptions(job))

	for _, f := range m.Fields {
		if f.Target == "title" || f.Target == "content" {
			continue
		}
		t := fieldType(recs[0], f)
		if err := e.Content.EnsureFieldDefinition(ctx, job.TargetName, f.Target, t); err != nil {
			return fmt.Errorf("field definition %s: %w", f.Target, err)
		}
	}

	for i, rec := range recs {
		out := mapping.Transform(rec, m)

		id := ""
		if job.SyncMode == SyncUpsert && job.UniqueField != "" {
			v, ok := out.Get(job.UniqueField)
			if ok && !v.IsNull() {
				existing, err := e.Content.FindExisting(ctx, job.TargetName, job.UniqueField, v)
				if err != nil {
					log.Error().Err(err).Int("row", i).Msg("match lookup failed, skipping record")
					result.Skipped++
					continue
				}
				id = existing
			}
		}

		newID, err := e.Content.Upsert(ctx, job.TargetName, id, out)
		if err != nil {
			log.Error().Err(err).Int("row", i).Msg("upsert failed, skipping record")
			result.Skipped++
			continue
		}
		result.RowsWritten++
		result.InsertedIDs = append(result.InsertedIDs, newID)
	}
	return nil
}

func mappingOptions(job *Job) mapping.Options {
	// MaxDepth 0 is meaningful (no repeaters), so the job value is taken
	// as-is; defaulting happens when the job is created.
	return mapping.Options{
		TitleField:   job.TitleField,
		ContentField: job.ContentField,
		DetectImages: job.DetectImages,
		MaxDepth:     job.MaxDepth,
	}
}

// fieldType infers the storage type a mapping field will need, from the
// example record the mapping was generated from.
func fieldType(example *record.Record, f mapping.Field) infer.StorageType {
	if f.Image {
		return infer.TypeImage
	}
	if f.Repeater {
		return infer.TypeLongText
	}
	if v, ok := mapping.Resolve(example, f); ok {
		return infer.Infer(v)
	}
	return infer.TypeVarchar
}

// NewRunLog stamps a run log from a finished result.
func NewRunLog(jobID string, startedAt time.Time, result *RunResult, runErr error) *RunLog {
	l := &RunLog{
		JobID:      jobID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Status:     "success",
	}
	if result != nil {
		l.RowsRead = result.RowsRead
		l.RowsWritten = result.RowsWritten
	}
	if runErr != nil {
		l.Status = "error"
		l.Error = runErr.Error()
	}
	return l
}
