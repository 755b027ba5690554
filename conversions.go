package sqlixx

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// The conversion registry: one bind operation and one read operation per
// supported Go value type, selected by the value's static type. New value
// types plug in through ParameterBinder on the bind side and ColumnScanner
// on the read side without touching the statement machinery.

// ParameterBinder is the bind-side extension point: a value that knows how
// to write itself into parameter slot index (zero-based).
type ParameterBinder interface {
	BindParameter(s *Statement, index int) error
}

// ColumnScanner is the read-side extension point: a destination that knows
// how to populate itself from result column index (zero-based) of the
// current row.
type ColumnScanner interface {
	ScanColumn(s *Statement, index int) error
}

// bindValue binds one value to the zero-based parameter slot of s.
//
// Buffer-like values follow the zero-copy-by-default rule: string and []byte
// always take the transient path (the engine copies during the call, since
// the bytes live on the Go heap); a Data value binds according to its own
// static/transient marker without mutating the source; a *Data additionally
// transfers the destructor to the engine when the wrapper owns its bytes.
// A nil typed pointer binds NULL. Unrecognized types are bound as their
// fmt.Sprint text.
func bindValue(s *Statement, index int, value any) error {
	pos := index + 1
	if value == nil {
		return checkBind(s.stmt, sqlite3_bind_null(s.stmt, pos))
	}
	switch x := value.(type) {
	case int:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case int8:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case int16:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case int32:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case int64:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, x))
	case uint:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case uint8:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case uint16:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case uint32:
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, int64(x)))
	case uint64:
		// cap at MaxInt64 to avoid overflow
		i := int64(math.MaxInt64)
		if x <= uint64(math.MaxInt64) {
			i = int64(x)
		}
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, i))
	case float32:
		return checkBind(s.stmt, sqlite3_bind_double(s.stmt, pos, float64(x)))
	case float64:
		return checkBind(s.stmt, sqlite3_bind_double(s.stmt, pos, x))
	case bool:
		v := int64(0)
		if x {
			v = 1
		}
		return checkBind(s.stmt, sqlite3_bind_int64(s.stmt, pos, v))
	case string:
		d := TransientText(x)
		return bindData(s.stmt, pos, &d, false)
	case []byte:
		if x == nil {
			return checkBind(s.stmt, sqlite3_bind_null(s.stmt, pos))
		}
		d := TransientData(x)
		return bindData(s.stmt, pos, &d, false)
	case time.Time:
		d := TransientText(x.Format(time.RFC3339Nano))
		return bindData(s.stmt, pos, &d, false)
	case Data:
		return bindData(s.stmt, pos, &x, false)
	case *Data:
		if x == nil {
			return checkBind(s.stmt, sqlite3_bind_null(s.stmt, pos))
		}
		return bindData(s.stmt, pos, x, true)
	case *int:
		return bindOptional(s, index, x)
	case *int64:
		return bindOptional(s, index, x)
	case *float64:
		return bindOptional(s, index, x)
	case *bool:
		return bindOptional(s, index, x)
	case *string:
		return bindOptional(s, index, x)
	case *[]byte:
		return bindOptional(s, index, x)
	case *time.Time:
		return bindOptional(s, index, x)
	case ParameterBinder:
		return x.BindParameter(s, index)
	default:
		// Fallback to fmt to string
		d := TransientText(fmt.Sprint(value))
		return bindData(s.stmt, pos, &d, false)
	}
}

// bindOptional binds NULL for a nil pointer, otherwise the pointee.
func bindOptional[T any](s *Statement, index int, p *T) error {
	if p == nil {
		return checkBind(s.stmt, sqlite3_bind_null(s.stmt, index+1))
	}
	return bindValue(s, index, *p)
}

// Result reads the zero-based column index of the current row and converts
// it to T. A row must be available (Execute is inside a row callback, or the
// last Step returned SQLITE_ROW); anything else is a usage error. Supported
// types: the integer and float widths, bool, string, []byte, time.Time, Data
// (a borrowed blob view valid until the next step), any type implementing
// ColumnScanner, and the pointer forms of the primitives, which read a NULL
// column as nil. Reading a NULL column into a non-pointer type yields that
// type's zero value.
func Result[T any](s *Statement, index int) (T, error) {
	var out T
	if err := s.resultCheck(index); err != nil {
		return out, err
	}
	if sc, ok := any(&out).(ColumnScanner); ok {
		return out, sc.ScanColumn(s, index)
	}
	switch p := any(&out).(type) {
	case *int:
		*p = int(sqlite3_column_int64(s.stmt, index))
	case *int32:
		*p = int32(sqlite3_column_int64(s.stmt, index))
	case *int64:
		*p = sqlite3_column_int64(s.stmt, index)
	case *float32:
		*p = float32(sqlite3_column_double(s.stmt, index))
	case *float64:
		*p = sqlite3_column_double(s.stmt, index)
	case *bool:
		*p = sqlite3_column_int64(s.stmt, index) != 0
	case *string:
		*p = sqlite3_column_text_string(s.stmt, index)
	case *[]byte:
		*p = sqlite3_column_blob_bytes(s.stmt, index)
	case *time.Time:
		t, err := parseTimeString(sqlite3_column_text_string(s.stmt, index))
		if err != nil {
			return out, err
		}
		*p = t
	case *Data:
		*p = ViewData(
			sqlite3_column_blob(s.stmt, index),
			uint64(sqlite3_column_bytes(s.stmt, index)),
			EncodingNone,
		)
	case **int:
		*p = readOptional[int](s, index)
	case **int64:
		*p = readOptional[int64](s, index)
	case **float64:
		*p = readOptional[float64](s, index)
	case **bool:
		*p = readOptional[bool](s, index)
	case **string:
		*p = readOptional[string](s, index)
	case **[]byte:
		*p = readOptional[[]byte](s, index)
	case **time.Time:
		*p = readOptional[time.Time](s, index)
	default:
		return out, usagef("unsupported result type %T", out)
	}
	return out, nil
}

// ResultNamed is Result with the column resolved by name; an unknown name is
// a usage error.
func ResultNamed[T any](s *Statement, name string) (T, error) {
	index, err := s.RequiredColumnIndex(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return Result[T](s, index)
}

// readOptional reads a NULL column as nil, anything else through Result.
// resultCheck has already passed for this index.
func readOptional[T any](s *Statement, index int) *T {
	if sqlite3_column_type(s.stmt, index) == SQLITE_NULL {
		return nil
	}
	v, err := Result[T](s, index)
	if err != nil {
		return nil
	}
	return &v
}

// timestampFormats are the text layouts recognized when reading time.Time,
// the set supported by github.com/mattn/go-sqlite3.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, error) {
	trimmed := strings.TrimSuffix(s, "Z")
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, trimmed, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlixx: cannot parse %q as time", s)
}

// isTimeColumn checks if the declared column type indicates a time value.
func isTimeColumn(decltype string) bool {
	if decltype == "" {
		return false
	}
	upper := strings.ToUpper(decltype)
	return upper == "TIMESTAMP" || upper == "DATETIME" || upper == "DATE"
}
