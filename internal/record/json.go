package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ── JSON conversion ────────────────────────────────────────
// Payloads arrive as JSON. encoding/json decodes objects into unordered
// maps, which would make derived schemas depend on map iteration order —
// gjson iterates object members in document order, so field positions in
// the payload survive into the Record.

// FromJSON parses a JSON document into a Value, preserving object key order.
func FromJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Null(), fmt.Errorf("invalid json")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(res gjson.Result) Value {
	switch {
	case res.Type == gjson.Null:
		return Null()
	case res.Type == gjson.True:
		return Bool(true)
	case res.Type == gjson.False:
		return Bool(false)
	case res.Type == gjson.Number:
		// Integer-shaped tokens stay integers; anything with a fraction
		// or exponent becomes a float.
		raw := res.Raw
		if !strings.ContainsAny(raw, ".eE") {
			return Int(res.Int())
		}
		return Float(res.Float())
	case res.Type == gjson.String:
		return String(res.String())
	case res.IsArray():
		items := res.Array()
		list := make([]Value, 0, len(items))
		for _, it := range items {
			list = append(list, fromResult(it))
		}
		return List(list...)
	case res.IsObject():
		rec := NewRecord()
		res.ForEach(func(key, value gjson.Result) bool {
			rec.Set(key.String(), fromResult(value))
			return true
		})
		return Rec(rec)
	default:
		return Null()
	}
}

// FromAny converts a native Go value into a Value. Maps are accepted but
// their field order is Go's map order — prefer FromJSON for payloads where
// order matters.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return String(x)
	case time.Time:
		return Time(x)
	case []byte:
		return String(string(x))
	case Value:
		return x
	case *Record:
		return Rec(x)
	case []any:
		list := make([]Value, 0, len(x))
		for _, it := range x {
			list = append(list, FromAny(it))
		}
		return List(list...)
	case map[string]any:
		rec := NewRecord()
		for k, val := range x {
			rec.Set(k, FromAny(val))
		}
		return Rec(rec)
	default:
		return String(fmt.Sprint(x))
	}
}

// ToAny converts a Value back to plain Go types (records become
// map[string]any, so field order is lost).
func ToAny(v Value) any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.Int()
	case KindFloat:
		return v.Float()
	case KindString:
		return v.Str()
	case KindTime:
		return v.Time()
	case KindList:
		out := make([]any, 0, len(v.List()))
		for _, it := range v.List() {
			out = append(out, ToAny(it))
		}
		return out
	case KindRecord:
		out := make(map[string]any, v.Record().Len())
		for _, k := range v.Record().Keys() {
			fv, _ := v.Record().Get(k)
			out[k] = ToAny(fv)
		}
		return out
	default:
		return nil
	}
}
