package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablemap/internal/infer"
	"tablemap/internal/record"
	"tablemap/internal/schema"
)

func TestBuildInjectsSyntheticPrimaryKey(t *testing.T) {
	// {name: "Widget", price: 9.99, tags: ["a","b"]} with no pk field.
	example := record.NewRecord()
	example.Set("name", record.String("Widget"))
	example.Set("price", record.Float(9.99))
	example.Set("tags", record.List(record.String("a"), record.String("b")))

	s, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)

	want := []schema.Column{
		{Name: "id", Type: infer.TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: infer.TypeVarchar},
		{Name: "price", Type: infer.TypeDecimal},
		{Name: "tags", Type: infer.TypeLongText},
	}
	assert.Equal(t, want, s.Columns)
}

func TestBuildPromotesExistingPrimaryKey(t *testing.T) {
	// {id: 5, title: "x"} with pk "id": no synthetic key injected.
	example := record.NewRecord()
	example.Set("id", record.Int(5))
	example.Set("title", record.String("x"))

	s, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)

	want := []schema.Column{
		{Name: "id", Type: infer.TypeInteger, PrimaryKey: true},
		{Name: "title", Type: infer.TypeVarchar},
	}
	assert.Equal(t, want, s.Columns)
}

func TestBuildPromotedKeyKeepsInferredType(t *testing.T) {
	// A string id stays VARCHAR; the requested type only shapes the
	// synthetic auto-increment column.
	example := record.NewRecord()
	example.Set("id", record.String("abc-123"))
	example.Set("title", record.String("x"))

	s, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)

	pk, ok := s.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, infer.TypeVarchar, pk.Type)
	assert.False(t, pk.AutoIncrement)
}

func TestBuildExactlyOnePrimaryKey(t *testing.T) {
	examples := []*record.Record{}

	e1 := record.NewRecord()
	e1.Set("a", record.Int(1))
	examples = append(examples, e1)

	e2 := record.NewRecord()
	e2.Set("key", record.String("k"))
	e2.Set("a", record.Int(1))
	examples = append(examples, e2)

	e3 := record.NewRecord()
	examples = append(examples, e3)

	for _, e := range examples {
		s, err := schema.Build(e, "key", infer.TypeVarchar)
		require.NoError(t, err)
		n := 0
		for _, c := range s.Columns {
			if c.PrimaryKey {
				n++
			}
		}
		assert.Equal(t, 1, n)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	example := record.NewRecord()
	example.Set("b", record.String("two"))
	example.Set("a", record.Int(1))
	example.Set("c", record.Bool(true))

	s1, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)
	s2, err := schema.Build(example, "id", infer.TypeInteger)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, []string{"id", "b", "a", "c"}, s1.ColumnNames())
}

func TestBuildDefaultsPrimaryKeyConfig(t *testing.T) {
	example := record.NewRecord()
	example.Set("name", record.String("n"))

	s, err := schema.Build(example, "", "")
	require.NoError(t, err)
	pk, ok := s.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
	assert.Equal(t, infer.TypeInteger, pk.Type)
	assert.True(t, pk.AutoIncrement)
}

func TestBuildRejectsCompositePrimaryKeyField(t *testing.T) {
	example := record.NewRecord()
	example.Set("id", record.List(record.Int(1), record.Int(2)))
	example.Set("name", record.String("n"))

	_, err := schema.Build(example, "id", infer.TypeInteger)
	require.Error(t, err)
	var conflict *schema.ErrSchemaConflict
	assert.ErrorAs(t, err, &conflict)
}
