package importer_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablemap/internal/importer"
	"tablemap/internal/infer"
	"tablemap/internal/record"
	"tablemap/internal/schema"
)

// fakeTables records what the engine asked a table destination to do.
type fakeTables struct {
	ensured map[string]*schema.Schema
	rows    map[string][]*record.Record
	failOn  int // 1-based row index that fails the batch, 0 = never
}

func newFakeTables() *fakeTables {
	return &fakeTables{ensured: map[string]*schema.Schema{}, rows: map[string][]*record.Record{}}
}

func (f *fakeTables) EnsureTable(ctx context.Context, name string, sc *schema.Schema) error {
	if _, ok := f.ensured[name]; !ok {
		f.ensured[name] = sc
	}
	return nil
}

func (f *fakeTables) BulkInsert(ctx context.Context, table string, sc *schema.Schema, recs []*record.Record) (int, []int64, error) {
	for i := range recs {
		if f.failOn == i+1 {
			return 0, nil, fmt.Errorf("row %d rejected", i+1)
		}
	}
	var ids []int64
	for _, r := range recs {
		f.rows[table] = append(f.rows[table], r)
		ids = append(ids, int64(len(f.rows[table])))
	}
	return len(recs), ids, nil
}

// fakeContent is an in-memory content destination.
type fakeContent struct {
	posts      map[string]*record.Record // id → record
	byField    map[string]string         // field=value → id
	defs       map[string]infer.StorageType
	upsertErrs int
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		posts:   map[string]*record.Record{},
		byField: map[string]string{},
		defs:    map[string]infer.StorageType{},
	}
}

func (f *fakeContent) FindExisting(ctx context.Context, postType, field string, value record.Value) (string, error) {
	return f.byField[field+"="+value.Text()], nil
}

func (f *fakeContent) Upsert(ctx context.Context, postType, id string, rec *record.Record) (string, error) {
	if f.upsertErrs > 0 {
		f.upsertErrs--
		return "", fmt.Errorf("storage unavailable")
	}
	if id == "" {
		id = fmt.Sprintf("post-%d", len(f.posts)+1)
	}
	f.posts[id] = rec
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		f.byField[k+"="+v.Text()] = id
	}
	return id, nil
}

func (f *fakeContent) EnsureFieldDefinition(ctx context.Context, postType, name string, t infer.StorageType) error {
	if _, ok := f.defs[name]; !ok {
		f.defs[name] = t
	}
	return nil
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func fileJob(path string) *importer.Job {
	return &importer.Job{
		ID:           "job-1",
		SourceType:   "json_file",
		SourceCfg:    map[string]any{"filePath": path},
		TargetKind:   importer.TargetTable,
		TargetName:   "items",
		PKName:       "id",
		DetectImages: true,
		MaxDepth:     3,
		SyncMode:     importer.SyncAppend,
	}
}

func TestRunTableDerivesSchemaFromFirstRecord(t *testing.T) {
	path := writeFixture(t, `[
		{"name":"Widget","price":9.99,"tags":["a","b"]},
		{"name":"Gadget","price":12.5,"tags":[]}
	]`)
	tables := newFakeTables()
	e := &importer.Engine{Tables: tables}

	result, err := e.Run(context.Background(), fileJob(path))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsRead)
	assert.Equal(t, 2, result.RowsWritten)
	assert.Equal(t, []string{"1", "2"}, result.InsertedIDs)

	sc := tables.ensured["items"]
	require.NotNil(t, sc)
	assert.Equal(t, []string{"id", "name", "price", "tags"}, sc.ColumnNames())
	pk, ok := sc.PrimaryKey()
	require.True(t, ok)
	assert.True(t, pk.AutoIncrement)
}

func TestRunEmptySourceIsSuccessfulNoOp(t *testing.T) {
	path := writeFixture(t, `[]`)
	tables := newFakeTables()
	e := &importer.Engine{Tables: tables}

	result, err := e.Run(context.Background(), fileJob(path))
	require.NoError(t, err)
	assert.Zero(t, result.RowsRead)
	assert.Zero(t, result.RowsWritten)
	assert.Empty(t, tables.ensured)
}

func TestRunTableBatchFailureReportsZero(t *testing.T) {
	path := writeFixture(t, `[{"a":1},{"a":2},{"a":3}]`)
	tables := newFakeTables()
	tables.failOn = 2
	e := &importer.Engine{Tables: tables}

	result, err := e.Run(context.Background(), fileJob(path))
	require.Error(t, err)
	assert.Equal(t, 3, result.RowsRead)
	assert.Zero(t, result.RowsWritten)
	assert.Empty(t, result.InsertedIDs)
}

func TestRunTableRejectsUpsertMode(t *testing.T) {
	path := writeFixture(t, `[{"a":1}]`)
	job := fileJob(path)
	job.SyncMode = importer.SyncUpsert
	e := &importer.Engine{Tables: newFakeTables()}

	_, err := e.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content target")
}

func TestRunUnknownSource(t *testing.T) {
	e := &importer.Engine{}
	_, err := e.Run(context.Background(), &importer.Job{SourceType: "smoke-signals"})
	require.Error(t, err)
}

func TestRunContentRegistersFieldsAndUpserts(t *testing.T) {
	path := writeFixture(t, `[
		{"headline":"T1","body":"B1","photo":"http://x/a.jpg","views":10},
		{"headline":"T2","body":"B2","photo":"http://x/b.png","views":20}
	]`)
	content := newFakeContent()
	job := fileJob(path)
	job.TargetKind = importer.TargetContent
	job.TargetName = "article"
	job.TitleField = "headline"
	job.ContentField = "body"
	e := &importer.Engine{Content: content}

	result, err := e.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsWritten)
	assert.Len(t, result.InsertedIDs, 2)

	// Title and content map to the built-in fields; the rest get
	// definitions with their inferred types.
	assert.NotContains(t, content.defs, "title")
	assert.NotContains(t, content.defs, "content")
	assert.Equal(t, infer.TypeImage, content.defs["photo"])
	assert.Equal(t, infer.TypeInteger, content.defs["views"])

	post := content.posts[result.InsertedIDs[0]]
	require.NotNil(t, post)
	title, _ := post.Get("title")
	assert.Equal(t, "T1", title.Str())
}

func TestRunContentUpsertMatchesUniqueField(t *testing.T) {
	path := writeFixture(t, `[{"sku":"W-1","name":"Widget"}]`)
	content := newFakeContent()
	job := fileJob(path)
	job.TargetKind = importer.TargetContent
	job.TargetName = "product"
	job.SyncMode = importer.SyncUpsert
	job.UniqueField = "sku"
	e := &importer.Engine{Content: content}

	result, err := e.Run(context.Background(), job)
	require.NoError(t, err)
	firstID := result.InsertedIDs[0]

	// A second run matches the existing entry instead of duplicating it.
	result, err = e.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{firstID}, result.InsertedIDs)
	assert.Len(t, content.posts, 1)
}

func TestRunContentSkipsFailingRecords(t *testing.T) {
	path := writeFixture(t, `[{"a":"1"},{"a":"2"},{"a":"3"}]`)
	content := newFakeContent()
	content.upsertErrs = 1
	job := fileJob(path)
	job.TargetKind = importer.TargetContent
	job.TargetName = "thing"
	e := &importer.Engine{Content: content}

	result, err := e.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowsRead)
	assert.Equal(t, 2, result.RowsWritten)
	assert.Equal(t, 1, result.Skipped)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	path := writeFixture(t, `[{"name":"A"},{"name":"B"},{"name":"C"}]`)
	tables := newFakeTables()
	e := &importer.Engine{Tables: tables}

	recs, sc, m, err := e.Preview(context.Background(), fileJob(path), 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	require.NotNil(t, sc)
	require.NotNil(t, m)
	assert.Empty(t, tables.ensured)
	assert.Empty(t, tables.rows)
}
