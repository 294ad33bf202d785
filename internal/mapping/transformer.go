package mapping

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tablemap/internal/record"
)

// DateErrorMarker is stored in place of a date-filtered field whose
// source value could not be parsed as a timestamp. The record itself is
// still produced; one bad field does not drop the row.
const DateErrorMarker = "#err:unparseable-timestamp"

// dateLayout is the canonical rendering of the date filter.
const dateLayout = "2006-01-02 15:04:05"

// Transform applies a mapping to one concrete record and returns the
// flat/typed output record, in mapping order. Repeater entries resolve
// to ordered lists of transformed sub-records; plain entries resolve via
// the path locator with the filter applied; absent values become an
// explicit Null field, never an omission.
func Transform(src *record.Record, m *Mapping) *record.Record {
	out := record.NewRecord()
	for _, f := range m.Fields {
		if f.Repeater {
			out.Set(f.Target, transformRepeater(src, f))
			continue
		}
		v, ok := Resolve(src, f)
		if !ok {
			out.Set(f.Target, record.Null())
			continue
		}
		out.Set(f.Target, applyFilter(v, f))
	}
	return out
}

func transformRepeater(src *record.Record, f Field) record.Value {
	v, ok := Resolve(src, f)
	if !ok || v.Kind() != record.KindList {
		return record.List()
	}
	sub := &Mapping{Fields: f.Sub}
	rows := make([]record.Value, 0, len(v.List()))
	for _, el := range v.List() {
		if el.Kind() != record.KindRecord {
			continue
		}
		rows = append(rows, record.Rec(Transform(el.Record(), sub)))
	}
	return record.List(rows...)
}

func applyFilter(v record.Value, f Field) record.Value {
	if f.FilterFn != nil {
		return f.FilterFn(v)
	}
	switch f.Filter {
	case "":
		return v
	case "int":
		return record.Int(toInt(v))
	case "float":
		return record.Float(toFloat(v))
	case "bool":
		return record.Bool(toBool(v))
	case "string":
		return record.String(v.Text())
	case "date":
		return filterDate(v, f.Target)
	default:
		// Unknown filter names pass the value through unchanged.
		log.Warn().Str("filter", f.Filter).Str("target", f.Target).Msg("unsupported filter, passing value through")
		return v
	}
}

func filterDate(v record.Value, target string) record.Value {
	t, ok := parseTimestamp(v)
	if !ok {
		log.Error().Str("target", target).Str("value", v.Text()).Msg("date filter: unparseable timestamp")
		return record.String(DateErrorMarker)
	}
	return record.String(t.Format(dateLayout))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	dateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	time.RFC1123Z,
	time.RFC1123,
}

func parseTimestamp(v record.Value) (time.Time, bool) {
	switch v.Kind() {
	case record.KindTime:
		return v.Time(), true
	case record.KindInt:
		// Unix seconds.
		return time.Unix(v.Int(), 0).UTC(), true
	case record.KindString:
		s := strings.TrimSpace(v.Str())
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// ── Coercions ──────────────────────────────────────────────

func toInt(v record.Value) int64 {
	switch v.Kind() {
	case record.KindInt:
		return v.Int()
	case record.KindFloat:
		return int64(v.Float())
	case record.KindBool:
		if v.Bool() {
			return 1
		}
		return 0
	case record.KindString:
		if i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		return int64(f)
	default:
		return 0
	}
}

func toFloat(v record.Value) float64 {
	switch v.Kind() {
	case record.KindFloat:
		return v.Float()
	case record.KindInt:
		return float64(v.Int())
	case record.KindBool:
		if v.Bool() {
			return 1
		}
		return 0
	case record.KindString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		return f
	default:
		return 0
	}
}

func toBool(v record.Value) bool {
	switch v.Kind() {
	case record.KindBool:
		return v.Bool()
	case record.KindInt:
		return v.Int() != 0
	case record.KindFloat:
		return v.Float() != 0
	case record.KindString:
		lower := strings.ToLower(strings.TrimSpace(v.Str()))
		return lower == "true" || lower == "yes" || lower == "1"
	default:
		return false
	}
}
