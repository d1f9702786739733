package dbv

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertValue(t *testing.T) {
	id := uuid.MustParse("6f1c3b9e-3d0a-4a57-9d6e-0d9a3c1e2b4f")
	when := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		kind ColumnKind
		src  any
		want any
	}{
		{"nil", KindString, nil, nil},
		{"int64", KindInteger, int64(5), int64(5)},
		{"int32", KindInteger, int32(5), int64(5)},
		{"uint8", KindInteger, uint8(5), int64(5)},
		{"int from bytes", KindInteger, []byte("12"), int64(12)},
		{"int from numeric text", KindInteger, "12.0", int64(12)},
		{"int from bool", KindInteger, true, int64(1)},
		{"float", KindNumber, float64(1.5), 1.5},
		{"float from int", KindNumber, int64(2), float64(2)},
		{"float from float32", KindNumber, float32(0.5), 0.5},
		{"float from text", KindNumber, []byte(" 3.25 "), 3.25},
		{"string from bytes", KindString, []byte("abc"), "abc"},
		{"string from int", KindString, int64(7), "7"},
		{"string from uuid", KindString, id, id.String()},
		{"bool from int", KindBoolean, int64(1), true},
		{"bool from text", KindBoolean, "f", false},
		{"bool from bytes", KindBoolean, []byte("TRUE"), true},
		{"time", KindDate, when, when},
		{"time from text", KindDate, "2024-05-01 12:30:00", when},
		{"time from rfc3339", KindDate, []byte("2024-05-01T12:30:00Z"), when},
		{"time from unix", KindDate, when.Unix(), when},
		{"bytes from string", KindBytes, "hi", []byte("hi")},
		{"uuid from text", KindUUID, id.String(), id},
		{"uuid from raw bytes", KindUUID, id[:], id},
		{"uuid from text bytes", KindUUID, []byte(id.String()), id},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := convertValue(tc.kind, tc.src)
			require.NoError(t, err)
			if w, ok := tc.want.(time.Time); ok {
				assert.True(t, w.Equal(got.(time.Time)), "got %v", got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvertValue_BytesAreCopied(t *testing.T) {
	src := []byte("abc")
	got, err := convertValue(KindBytes, src)
	require.NoError(t, err)
	src[0] = 'x'
	assert.Equal(t, []byte("abc"), got)
}

func TestConvertValue_Errors(t *testing.T) {
	cases := []struct {
		kind ColumnKind
		src  any
	}{
		{KindInteger, "abc"},
		{KindInteger, struct{}{}},
		{KindNumber, "x"},
		{KindBoolean, "maybe"},
		{KindBoolean, 1.5i},
		{KindDate, "yesterday"},
		{KindBytes, 12},
		{KindUUID, "not-a-uuid"},
		{KindString, []int{1}},
		{ColumnKind(99), 1},
	}
	for _, tc := range cases {
		_, err := convertValue(tc.kind, tc.src)
		assert.Error(t, err, "%s from %T", tc.kind, tc.src)
	}
}
