package infer_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tablemap/internal/infer"
	"tablemap/internal/record"
)

func TestInferScalars(t *testing.T) {
	cases := []struct {
		name string
		v    record.Value
		want infer.StorageType
	}{
		{"int", record.Int(42), infer.TypeInteger},
		{"float", record.Float(9.99), infer.TypeDecimal},
		{"bool", record.Bool(true), infer.TypeBoolean},
		{"time", record.Time(time.Now()), infer.TypeDateTime},
		{"short string", record.String("Widget"), infer.TypeVarchar},
		{"empty string", record.String(""), infer.TypeVarchar},
		{"max varchar", record.String(strings.Repeat("x", 255)), infer.TypeVarchar},
		{"long string", record.String(strings.Repeat("x", 256)), infer.TypeLongText},
		{"null", record.Null(), infer.TypeVarchar},
		{"image url", record.String("http://cdn.example.com/photos/a.jpg"), infer.TypeImage},
		{"image with query", record.String("https://x.test/img.PNG?w=200&h=100"), infer.TypeImage},
		{"bare path", record.String("uploads/cover.webp"), infer.TypeImage},
		{"not an image", record.String("http://x.test/page.html"), infer.TypeVarchar},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, infer.Infer(tc.v))
		})
	}
}

func TestInferComposites(t *testing.T) {
	nested := record.NewRecord()
	nested.Set("a", record.Int(1))

	imgRec := record.NewRecord()
	imgRec.Set("url", record.String("http://x.test/a.jpg"))
	imgRec.Set("alt", record.String("photo"))

	cases := []struct {
		name string
		v    record.Value
		want infer.StorageType
	}{
		{"scalar list", record.List(record.String("a"), record.String("b")), infer.TypeLongText},
		{"empty list", record.List(), infer.TypeLongText},
		{"record", record.Rec(nested), infer.TypeLongText},
		{"record with image url", record.Rec(imgRec), infer.TypeImage},
		{"gallery of strings", record.List(record.String("a.jpg"), record.String("b.png")), infer.TypeGallery},
		{"gallery of records", record.List(record.Rec(imgRec)), infer.TypeGallery},
		{"list of plain records", record.List(record.Rec(nested)), infer.TypeLongText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, infer.Infer(tc.v))
		})
	}
}

func TestIsImagePath(t *testing.T) {
	assert.True(t, infer.IsImagePath("A.JPG"))
	assert.True(t, infer.IsImagePath("http://h/p/x.svg?v=1"))
	assert.False(t, infer.IsImagePath(""))
	assert.False(t, infer.IsImagePath("jpg"))
	assert.False(t, infer.IsImagePath("doc.pdf"))
	// Extension must be on the path, not the query string.
	assert.False(t, infer.IsImagePath("http://h/download?file=a.jpg"))
}

func TestIsGallery(t *testing.T) {
	assert.False(t, infer.IsGallery(record.List()))
	assert.False(t, infer.IsGallery(record.String("a.jpg")))
	assert.False(t, infer.IsGallery(record.List(record.Int(1))))

	rec := record.NewRecord()
	rec.Set("url", record.String("a.gif"))
	assert.True(t, infer.IsGallery(record.List(record.Rec(rec))))
}
