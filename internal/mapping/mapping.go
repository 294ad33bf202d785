// Package mapping converts nested API payloads into flat, typed records.
//
// A Mapping is derived once from an example payload and then applied to
// every record in a batch, so the target shape is stable across the batch
// no matter how individual records vary.
package mapping

import (
	"strings"

	"tablemap/internal/record"
)

// Field is one entry of a mapping: either a plain locator (with optional
// filter and image flag) or a repeater carrying a sub-mapping for each
// repeated row.
type Field struct {
	Target string `json:"target"`
	Path   string `json:"path"`
	Image  bool   `json:"image,omitempty"`
	Filter string `json:"filter,omitempty"`

	Repeater bool    `json:"repeater,omitempty"`
	Sub      []Field `json:"subFields,omitempty"`
	Depth    int     `json:"depth,omitempty"`

	// FilterFn is a caller-supplied pure transform. When set it takes
	// the place of the named Filter.
	FilterFn func(record.Value) record.Value `json:"-"`
}

// Mapping is an ordered field list. Read-only once generated.
type Mapping struct {
	Fields []Field `json:"fields"`
}

// Field returns the entry with the given target name.
func (m *Mapping) Field(target string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Target == target {
			return f, true
		}
	}
	return Field{}, false
}

// ── PathResolver ───────────────────────────────────────────

// Resolve walks a dotted-path locator through a nested record. The
// locator is either the path string itself or any descriptor carrying
// one (a Field or *Field). A missing intermediate yields (Null, false)
// immediately — absence is a normal result, not an error.
func Resolve(rec *record.Record, locator any) (record.Value, bool) {
	var path string
	switch l := locator.(type) {
	case string:
		path = l
	case Field:
		path = l.Path
	case *Field:
		if l != nil {
			path = l.Path
		}
	}
	if rec == nil || path == "" {
		return record.Null(), false
	}

	cur := record.Rec(rec)
	for _, seg := range strings.Split(path, ".") {
		if cur.Kind() != record.KindRecord {
			return record.Null(), false
		}
		next, ok := cur.Record().Get(seg)
		if !ok {
			return record.Null(), false
		}
		cur = next
	}
	return cur, true
}
