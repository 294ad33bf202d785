// Package infer maps example values to storage types.
package infer

import (
	"net/url"
	"path"
	"strings"

	"tablemap/internal/record"
)

// StorageType is the inferred column/field type for one value.
type StorageType string

const (
	TypeInteger  StorageType = "INTEGER"
	TypeDecimal  StorageType = "DECIMAL(10,2)"
	TypeBoolean  StorageType = "BOOLEAN"
	TypeVarchar  StorageType = "VARCHAR(255)"
	TypeLongText StorageType = "LONGTEXT"
	TypeDateTime StorageType = "DATETIME"
	TypeImage    StorageType = "IMAGE"
	TypeGallery  StorageType = "GALLERY"
)

// Composite reports whether the type holds an encoded structure rather
// than a single scalar.
func (t StorageType) Composite() bool {
	return t == TypeLongText || t == TypeGallery
}

// varcharLimit is the longest string stored inline; longer strings spill
// into LONGTEXT.
const varcharLimit = 255

// Infer returns the most specific stable storage type for an example
// value. It is pure and total: unknown or absent values fall back to the
// default text type.
func Infer(v record.Value) StorageType {
	switch v.Kind() {
	case record.KindInt:
		return TypeInteger
	case record.KindFloat:
		return TypeDecimal
	case record.KindBool:
		return TypeBoolean
	case record.KindTime:
		return TypeDateTime
	case record.KindString:
		if IsImagePath(v.Str()) {
			return TypeImage
		}
		if len(v.Str()) > varcharLimit {
			return TypeLongText
		}
		return TypeVarchar
	case record.KindList:
		if IsGallery(v) {
			return TypeGallery
		}
		return TypeLongText
	case record.KindRecord:
		if u, ok := v.Record().Get("url"); ok && u.Kind() == record.KindString && IsImagePath(u.Str()) {
			return TypeImage
		}
		return TypeLongText
	default:
		return TypeVarchar
	}
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".svg":  true,
}

// IsImagePath reports whether a string locates an image: its path
// component (query string ignored) ends in a known image extension,
// matched case-insensitively.
func IsImagePath(s string) bool {
	if s == "" {
		return false
	}
	p := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return imageExts[strings.ToLower(path.Ext(p))]
}

// IsGallery reports whether a list is a collection of image references:
// its first element is either an image string or a record whose "url"
// field is an image string. Galleries are a leaf type — they are never
// treated as repeating row sets.
func IsGallery(v record.Value) bool {
	if v.Kind() != record.KindList || len(v.List()) == 0 {
		return false
	}
	first := v.List()[0]
	switch first.Kind() {
	case record.KindString:
		return IsImagePath(first.Str())
	case record.KindRecord:
		u, ok := first.Record().Get("url")
		return ok && u.Kind() == record.KindString && IsImagePath(u.Str())
	default:
		return false
	}
}
