package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablemap/internal/infer"
	"tablemap/internal/record"
	"tablemap/internal/schema"
	"tablemap/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func productRecord(name string, price float64) *record.Record {
	r := record.NewRecord()
	r.Set("name", record.String(name))
	r.Set("price", record.Float(price))
	r.Set("tags", record.List(record.String("a"), record.String("b")))
	return r
}

// ── TableStore ─────────────────────────────────────────────

func TestTableStoreInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ts := storage.NewTableStore(db)
	ctx := context.Background()

	example := productRecord("Widget", 9.99)
	example.Set("created", record.Time(time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)))
	sc, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)

	require.NoError(t, ts.EnsureTable(ctx, "products", sc))
	// Creating again is a no-op, not an error.
	require.NoError(t, ts.EnsureTable(ctx, "products", sc))

	exists, err := ts.TableExists(ctx, "products")
	require.NoError(t, err)
	assert.True(t, exists)

	id, err := ts.Insert(ctx, "products", sc, example)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	got, err := ts.Get(ctx, "products", sc, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	name, _ := got.Get("name")
	assert.Equal(t, "Widget", name.Str())
	price, _ := got.Get("price")
	assert.Equal(t, 9.99, price.Float())

	// The list survives the text column round trip with its shape.
	tags, _ := got.Get("tags")
	require.Equal(t, record.KindList, tags.Kind())
	assert.Equal(t, "a", tags.List()[0].Str())

	created, _ := got.Get("created")
	require.Equal(t, record.KindTime, created.Kind())
	assert.Equal(t, 2025, created.Time().Year())
}

func TestTableStoreGetMissing(t *testing.T) {
	db := openTestDB(t)
	ts := storage.NewTableStore(db)
	ctx := context.Background()

	sc, err := schema.Build(productRecord("Widget", 1), "id", infer.TypeInteger)
	require.NoError(t, err)
	require.NoError(t, ts.EnsureTable(ctx, "products", sc))

	got, err := ts.Get(ctx, "products", sc, 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTableStoreBulkInsertCollectsIDs(t *testing.T) {
	db := openTestDB(t)
	ts := storage.NewTableStore(db)
	ctx := context.Background()

	sc, err := schema.Build(productRecord("Widget", 1), "id", infer.TypeInteger)
	require.NoError(t, err)
	require.NoError(t, ts.EnsureTable(ctx, "products", sc))

	batch := []*record.Record{
		productRecord("A", 1),
		productRecord("B", 2),
		productRecord("C", 3),
	}
	n, ids, err := ts.BulkInsert(ctx, "products", sc, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	rows, err := ts.List(ctx, "products", sc)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestTableStoreBulkInsertRollsBackWholeBatch(t *testing.T) {
	db := openTestDB(t)
	ts := storage.NewTableStore(db)
	ctx := context.Background()

	// Explicit primary key so a duplicate violates the constraint.
	example := record.NewRecord()
	example.Set("id", record.Int(1))
	example.Set("title", record.String("x"))
	sc, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)
	require.NoError(t, ts.EnsureTable(ctx, "articles", sc))

	mk := func(id int64) *record.Record {
		r := record.NewRecord()
		r.Set("id", record.Int(id))
		r.Set("title", record.String("t"))
		return r
	}
	n, ids, err := ts.BulkInsert(ctx, "articles", sc, []*record.Record{mk(1), mk(2), mk(2)})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, ids)

	// Nothing from the failed batch landed.
	rows, err := ts.List(ctx, "articles", sc)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTableStoreUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	ts := storage.NewTableStore(db)
	ctx := context.Background()

	sc, err := schema.Build(productRecord("Widget", 1), "id", infer.TypeInteger)
	require.NoError(t, err)
	require.NoError(t, ts.EnsureTable(ctx, "products", sc))

	id, err := ts.Insert(ctx, "products", sc, productRecord("Widget", 1))
	require.NoError(t, err)

	patch := record.NewRecord()
	patch.Set("name", record.String("Gadget"))
	affected, err := ts.Update(ctx, "products", sc, id, patch)
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	got, err := ts.Get(ctx, "products", sc, id)
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "Gadget", name.Str())

	affected, err = ts.Delete(ctx, "products", sc, id)
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	got, err = ts.Get(ctx, "products", sc, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// ── ContentStore ───────────────────────────────────────────

func TestContentStoreUpsertAndFind(t *testing.T) {
	db := openTestDB(t)
	cs := storage.NewContentStore(db)
	ctx := context.Background()

	rec := record.NewRecord()
	rec.Set("title", record.String("Hello"))
	rec.Set("content", record.String("Body text"))
	rec.Set("sku", record.String("W-1"))
	rec.Set("specs", record.List(record.Int(1), record.Int(2)))

	id, err := cs.Upsert(ctx, "product", "", rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	found, err := cs.FindExisting(ctx, "product", "sku", record.String("W-1"))
	require.NoError(t, err)
	assert.Equal(t, id, found)

	found, err = cs.FindExisting(ctx, "product", "sku", record.String("W-2"))
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = cs.FindExisting(ctx, "product", "title", record.String("Hello"))
	require.NoError(t, err)
	assert.Equal(t, id, found)

	post, err := cs.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "Body text", post.Content)

	sku, _ := post.Fields.Get("sku")
	assert.Equal(t, "W-1", sku.Str())
	specs, _ := post.Fields.Get("specs")
	require.Equal(t, record.KindList, specs.Kind())
	assert.EqualValues(t, 1, specs.List()[0].Int())
}

func TestContentStoreUpsertExistingReplacesFields(t *testing.T) {
	db := openTestDB(t)
	cs := storage.NewContentStore(db)
	ctx := context.Background()

	rec := record.NewRecord()
	rec.Set("title", record.String("v1"))
	rec.Set("color", record.String("red"))
	id, err := cs.Upsert(ctx, "product", "", rec)
	require.NoError(t, err)

	rec2 := record.NewRecord()
	rec2.Set("title", record.String("v2"))
	rec2.Set("size", record.String("L"))
	id2, err := cs.Upsert(ctx, "product", id, rec2)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	post, err := cs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", post.Title)
	_, hasColor := post.Fields.Get("color")
	assert.False(t, hasColor, "old custom fields should be replaced")
	size, _ := post.Fields.Get("size")
	assert.Equal(t, "L", size.Str())

	posts, err := cs.ListByType(ctx, "product")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestContentStoreFieldDefinitionsFirstWins(t *testing.T) {
	db := openTestDB(t)
	cs := storage.NewContentStore(db)
	ctx := context.Background()

	require.NoError(t, cs.EnsureFieldDefinition(ctx, "product", "price", infer.TypeDecimal))
	// Re-registering with a different type does not overwrite.
	require.NoError(t, cs.EnsureFieldDefinition(ctx, "product", "price", infer.TypeVarchar))
	require.NoError(t, cs.EnsureFieldDefinition(ctx, "product", "photo", infer.TypeImage))

	defs, err := cs.FieldDefinitions(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, infer.TypeDecimal, defs["price"])
	assert.Equal(t, infer.TypeImage, defs["photo"])
}
