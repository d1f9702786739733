package dbv

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// convertValue turns a driver value (or a caller-supplied Go value) into the
// canonical Go type stored by a column of the given kind. nil stays nil.
func convertValue(kind ColumnKind, src any) (any, error) {
	if src == nil {
		return nil, nil
	}
	switch kind {
	case KindInteger:
		return toInt64(src)
	case KindNumber:
		return toFloat64(src)
	case KindString:
		return toString(src)
	case KindBoolean:
		return toBool(src)
	case KindDate:
		return toTime(src)
	case KindBytes:
		return toBytes(src)
	case KindUUID:
		return toUUID(src)
	}
	return nil, errors.Errorf("dbv: unknown column kind %d", kind)
}

func toInt64(src any) (any, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	}
	rv := reflect.ValueOf(src)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	}
	return nil, conversionError(src, KindInteger)
}

func parseInt(s string) (any, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// NUMERIC columns may come back as "12.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "dbv: cannot convert %q to integer", s)
	}
	return int64(f), nil
}

func toFloat64(src any) (any, error) {
	switch v := src.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case []byte:
		return parseFloat(string(v))
	case string:
		return parseFloat(v)
	}
	rv := reflect.ValueOf(src)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, conversionError(src, KindNumber)
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, errors.Wrapf(err, "dbv: cannot convert %q to number", s)
	}
	return f, nil
}

func toString(src any) (any, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case uuid.UUID:
		return v.String(), nil
	}
	if rv := reflect.ValueOf(src); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return nil, conversionError(src, KindString)
}

func toBool(src any) (any, error) {
	switch v := src.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case []byte:
		return parseBool(string(v))
	case string:
		return parseBool(v)
	}
	return nil, conversionError(src, KindBoolean)
}

func parseBool(s string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	}
	return nil, errors.Errorf("dbv: cannot convert %q to boolean", s)
}

func toTime(src any) (any, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}
	return nil, conversionError(src, KindDate)
}

func parseTime(s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, errors.Errorf("dbv: cannot convert %q to date", s)
}

func toBytes(src any) (any, error) {
	switch v := src.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	}
	return nil, conversionError(src, KindBytes)
}

func toUUID(src any) (any, error) {
	switch v := src.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		u, err := uuid.Parse(v)
		return wrapUUID(u, err, v)
	case []byte:
		if len(v) == 16 {
			u, err := uuid.FromBytes(v)
			return wrapUUID(u, err, string(v))
		}
		u, err := uuid.ParseBytes(v)
		return wrapUUID(u, err, string(v))
	}
	return nil, conversionError(src, KindUUID)
}

func wrapUUID(u uuid.UUID, err error, raw string) (any, error) {
	if err != nil {
		return nil, errors.Wrapf(err, "dbv: cannot convert %q to uuid", raw)
	}
	return u, nil
}

func conversionError(src any, kind ColumnKind) error {
	return errors.Errorf("dbv: cannot convert %T to %s", src, kind)
}
