package codec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablemap/internal/codec"
	"tablemap/internal/record"
)

func sampleValue() record.Value {
	inner := record.NewRecord()
	inner.Set("name", record.String("widget"))
	inner.Set("qty", record.Int(3))

	outer := record.NewRecord()
	outer.Set("b", record.Bool(true))
	outer.Set("price", record.Float(9.99))
	outer.Set("when", record.Time(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))
	outer.Set("tags", record.List(record.String("a"), record.String("b")))
	outer.Set("item", record.Rec(inner))
	outer.Set("gone", record.Null())
	return record.Rec(outer)
}

func TestRoundTrip(t *testing.T) {
	cases := []record.Value{
		record.Null(),
		record.Bool(false),
		record.Int(-12345),
		record.Int(1 << 60),
		record.Float(0.125),
		record.String(""),
		record.String(`quotes " and \ slashes`),
		record.Time(time.Date(1999, 12, 31, 23, 59, 59, 123456789, time.UTC)),
		record.List(),
		sampleValue(),
	}
	for _, v := range cases {
		enc := codec.Encode(v)
		dec, ok := codec.Decode(enc)
		require.True(t, ok, "decode failed for %s", enc)
		assert.True(t, v.Equal(dec), "round trip mismatch for %s", enc)
	}
}

func TestRoundTripPreservesFieldOrder(t *testing.T) {
	dec, ok := codec.Decode(codec.Encode(sampleValue()))
	require.True(t, ok)
	assert.Equal(t, []string{"b", "price", "when", "tags", "item", "gone"}, dec.Record().Keys())
}

func TestDecodeRejectsPlainText(t *testing.T) {
	plain := []string{
		"",
		"hello world",
		`98:1:{i:0;s:4:"demo";}`, // serialized-looking user text
		`{"t":"int","v":5}`,      // tagged body without the marker
		"@enc:2:" + `{"t":"int","v":5}`, // unknown version
	}
	for _, s := range plain {
		_, ok := codec.Decode(s)
		assert.False(t, ok, "should not decode %q", s)
		assert.False(t, codec.IsEncoded(s))
	}
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	bad := []string{
		codec.Marker,
		codec.Marker + "not json",
		codec.Marker + `{"v":5}`,
		codec.Marker + `{"t":"mystery","v":5}`,
		codec.Marker + `{"t":"int","v":"five"}`,
		codec.Marker + `{"t":"time","v":"not a time"}`,
		codec.Marker + `{"t":"rec","v":[["only-key"]]}`,
		codec.Marker + `{"t":"list","v":{"t":"int","v":1}}`,
	}
	for _, s := range bad {
		_, ok := codec.Decode(s)
		assert.False(t, ok, "should not decode %q", s)
	}
}

func TestEncodedAlwaysDetected(t *testing.T) {
	enc := codec.Encode(sampleValue())
	assert.True(t, strings.HasPrefix(enc, codec.Marker))
	assert.True(t, codec.IsEncoded(enc))
}
