// Package codec implements the textual encoding used when composite or
// timestamp values are written into a string storage column.
//
// The format is a structural marker followed by a self-describing JSON
// body: every node carries a type tag, and record fields are stored as
// ordered key/value pairs so a decoded value is identical to what was
// encoded — including field order. The marker is versioned; a future
// format change bumps the version instead of changing this one.
package codec

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tablemap/internal/record"
)

// Marker prefixes every encoded value. Decode requires both the marker
// and a well-formed tagged body, so serialized-looking user text (for
// example PHP-style "98:1:{...}" strings) is never misread as encoded.
const Marker = "@enc:1:"

// Encode renders a value into the marker-prefixed tagged form.
func Encode(v record.Value) string {
	var sb strings.Builder
	sb.WriteString(Marker)
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v record.Value) {
	switch v.Kind() {
	case record.KindNull:
		sb.WriteString(`{"t":"null"}`)
	case record.KindBool:
		sb.WriteString(`{"t":"bool","v":`)
		sb.WriteString(strconv.FormatBool(v.Bool()))
		sb.WriteString("}")
	case record.KindInt:
		sb.WriteString(`{"t":"int","v":`)
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
		sb.WriteString("}")
	case record.KindFloat:
		sb.WriteString(`{"t":"float","v":`)
		sb.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
		sb.WriteString("}")
	case record.KindString:
		sb.WriteString(`{"t":"str","v":`)
		sb.Write(quote(v.Str()))
		sb.WriteString("}")
	case record.KindTime:
		sb.WriteString(`{"t":"time","v":`)
		sb.Write(quote(v.Time().Format(time.RFC3339Nano)))
		sb.WriteString("}")
	case record.KindList:
		sb.WriteString(`{"t":"list","v":[`)
		for i, it := range v.List() {
			if i > 0 {
				sb.WriteString(",")
			}
			writeValue(sb, it)
		}
		sb.WriteString("]}")
	case record.KindRecord:
		sb.WriteString(`{"t":"rec","v":[`)
		rec := v.Record()
		for i, k := range rec.Keys() {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("[")
			sb.Write(quote(k))
			sb.WriteString(",")
			fv, _ := rec.Get(k)
			writeValue(sb, fv)
			sb.WriteString("]")
		}
		sb.WriteString("]}")
	}
}

func quote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// IsEncoded reports whether a string carries the encoding marker and a
// body the decoder accepts.
func IsEncoded(s string) bool {
	_, ok := Decode(s)
	return ok
}

// Decode reverses Encode. The second return is false when the input is
// ordinary text: no marker, or a marker followed by anything the encoder
// could not have produced.
func Decode(s string) (record.Value, bool) {
	body, ok := strings.CutPrefix(s, Marker)
	if !ok {
		return record.Null(), false
	}
	if !gjson.Valid(body) {
		return record.Null(), false
	}
	return readValue(gjson.Parse(body))
}

func readValue(res gjson.Result) (record.Value, bool) {
	if !res.IsObject() {
		return record.Null(), false
	}
	tag := res.Get("t")
	if tag.Type != gjson.String {
		return record.Null(), false
	}
	body := res.Get("v")
	switch tag.String() {
	case "null":
		return record.Null(), true
	case "bool":
		if !body.IsBool() {
			return record.Null(), false
		}
		return record.Bool(body.Bool()), true
	case "int":
		if body.Type != gjson.Number {
			return record.Null(), false
		}
		i, err := strconv.ParseInt(body.Raw, 10, 64)
		if err != nil {
			return record.Null(), false
		}
		return record.Int(i), true
	case "float":
		if body.Type != gjson.Number {
			return record.Null(), false
		}
		return record.Float(body.Float()), true
	case "str":
		if body.Type != gjson.String {
			return record.Null(), false
		}
		return record.String(body.String()), true
	case "time":
		if body.Type != gjson.String {
			return record.Null(), false
		}
		t, err := time.Parse(time.RFC3339Nano, body.String())
		if err != nil {
			return record.Null(), false
		}
		return record.Time(t), true
	case "list":
		if !body.IsArray() {
			return record.Null(), false
		}
		var items []record.Value
		okAll := true
		body.ForEach(func(_, el gjson.Result) bool {
			v, ok := readValue(el)
			if !ok {
				okAll = false
				return false
			}
			items = append(items, v)
			return true
		})
		if !okAll {
			return record.Null(), false
		}
		return record.List(items...), true
	case "rec":
		if !body.IsArray() {
			return record.Null(), false
		}
		rec := record.NewRecord()
		okAll := true
		body.ForEach(func(_, pair gjson.Result) bool {
			if !pair.IsArray() {
				okAll = false
				return false
			}
			kv := pair.Array()
			if len(kv) != 2 || kv[0].Type != gjson.String {
				okAll = false
				return false
			}
			v, ok := readValue(kv[1])
			if !ok {
				okAll = false
				return false
			}
			rec.Set(kv[0].String(), v)
			return true
		})
		if !okAll {
			return record.Null(), false
		}
		return record.Rec(rec), true
	default:
		return record.Null(), false
	}
}
