package mapping

import (
	"tablemap/internal/infer"
	"tablemap/internal/record"
)

// Options controls mapping generation. The value is copied (with the
// depth budget decremented) on every recursive call, so generation never
// mutates shared state.
type Options struct {
	// TitleField and ContentField name top-level source fields mapped to
	// the reserved "title" and "content" targets.
	TitleField   string
	ContentField string

	// DetectImages maps image-locator strings as image fields.
	DetectImages bool

	// MaxDepth bounds repeater recursion. At 0, no field is classified
	// as a repeater.
	MaxDepth int
}

// DefaultOptions returns the generation defaults.
func DefaultOptions() Options {
	return Options{DetectImages: true, MaxDepth: 3}
}

func (o Options) child() Options {
	o.MaxDepth--
	// Title/content reservation applies only at the top level.
	o.TitleField = ""
	o.ContentField = ""
	return o
}

// Generate derives a mapping from one example record. Deterministic for
// identical inputs: fields are visited in record order.
func Generate(example *record.Record, opts Options) *Mapping {
	m := &Mapping{}
	if example == nil {
		return m
	}

	reserved := map[string]bool{}
	if opts.TitleField != "" && example.Has(opts.TitleField) {
		m.Fields = append(m.Fields, Field{Target: "title", Path: opts.TitleField})
		reserved[opts.TitleField] = true
	}
	if opts.ContentField != "" && example.Has(opts.ContentField) {
		m.Fields = append(m.Fields, Field{Target: "content", Path: opts.ContentField})
		reserved[opts.ContentField] = true
	}

	for _, name := range example.Keys() {
		if reserved[name] {
			continue
		}
		v, _ := example.Get(name)
		if f, ok := generateField(name, v, opts); ok {
			m.Fields = append(m.Fields, f)
		}
	}
	return m
}

func generateField(name string, v record.Value, opts Options) (Field, bool) {
	if isRepeaterCandidate(v) {
		if opts.MaxDepth <= 0 {
			// Out of depth budget: skipping beats unbounded recursion
			// into arbitrarily nested arrays.
			return Field{}, false
		}
		sub := Generate(v.List()[0].Record(), opts.child())
		return Field{
			Target:   name,
			Path:     name,
			Repeater: true,
			Sub:      sub.Fields,
			Depth:    opts.MaxDepth,
		}, true
	}

	if opts.DetectImages && v.Kind() == record.KindString && infer.IsImagePath(v.Str()) {
		return Field{Target: name, Path: name, Image: true}, true
	}

	return Field{Target: name, Path: name}, true
}

// isRepeaterCandidate reports whether a value is a one-to-many row set:
// a non-empty list whose first element is a record — unless the list is
// a gallery, which stays a leaf.
func isRepeaterCandidate(v record.Value) bool {
	if v.Kind() != record.KindList || len(v.List()) == 0 {
		return false
	}
	if infer.IsGallery(v) {
		return false
	}
	return v.List()[0].Kind() == record.KindRecord
}
