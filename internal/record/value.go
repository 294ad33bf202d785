package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ── Value ──────────────────────────────────────────────────
// Closed variant set for everything that can appear in an API payload
// or a stored row: scalar leaves, timestamps, lists, and nested records.
// Keeping the set closed (instead of passing interface{} around) is what
// lets type inference be a pure function.

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindList
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the supported value domain.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	list []Value
	rec  *Record
}

// ── Constructors ───────────────────────────────────────────

func Null() Value             { return Value{} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func String(s string) Value   { return Value{kind: KindString, s: s} }
func Time(t time.Time) Value  { return Value{kind: KindTime, t: t} }
func List(vs ...Value) Value  { return Value{kind: KindList, list: vs} }
func Rec(r *Record) Value     { return Value{kind: KindRecord, rec: r} }

// ── Accessors ──────────────────────────────────────────────

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() bool          { return v.b }
func (v Value) Int() int64          { return v.i }
func (v Value) Float() float64      { return v.f }
func (v Value) Str() string         { return v.s }
func (v Value) Time() time.Time     { return v.t }
func (v Value) List() []Value       { return v.list }
func (v Value) Record() *Record     { return v.rec }

// Text renders the value the way it is presented to filters and storage
// when a plain string is needed.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

// Equal reports deep equality, including list order and record field order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		return v.rec.Equal(o.rec)
	default:
		return false
	}
}

// ── Record ─────────────────────────────────────────────────
// Record is an insertion-ordered field set. Iteration order is the order
// fields were first set, which keeps schema building and mapping
// generation deterministic for a given example payload.

type Record struct {
	keys []string
	vals map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]Value)}
}

// Set adds or replaces a field. First insertion fixes its position.
func (r *Record) Set(key string, v Value) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Get returns the field value and whether it is present.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Has reports whether a field is present.
func (r *Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	return r.keys
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Equal reports deep equality including field order.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.keys) != len(o.keys) {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		if !r.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

func (r *Record) String() string {
	if r == nil {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", k, r.vals[k].Text())
	}
	sb.WriteByte('}')
	return sb.String()
}
