package model

import (
	"fmt"
	"strconv"

	"github.com/ae-archive/vae/internal/errs"
)

// Row is one result row keyed by column name. SQL NULL is stored as nil.
type Row map[string]any

// MissingFieldError is returned when a mandatory column is absent or NULL.
type MissingFieldError struct {
	Record string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing mandatory field %q", e.Record, e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == errs.ErrValidation }

// Has reports whether key is present with a non-NULL value.
func (r Row) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Int returns the value of key as an integer.
func (r Row) Int(key string) (int64, bool, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, true, fmt.Errorf("column %s: %w", key, err)
	}
	return n, true, nil
}

// Float returns the value of key as a float.
func (r Row) Float(key string) (float64, bool, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, true, fmt.Errorf("column %s: %w", key, err)
	}
	return f, true, nil
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// rowReader reads typed fields from a Row and keeps the first error.
type rowReader struct {
	record string
	row    Row
	err    error
}

func (rr *rowReader) fail(err error) {
	if rr.err == nil {
		rr.err = err
	}
}

func (rr *rowReader) int(key string) int64 {
	n, ok, err := rr.row.Int(key)
	switch {
	case err != nil:
		rr.fail(fmt.Errorf("%s: %w", rr.record, err))
	case !ok:
		rr.fail(&MissingFieldError{Record: rr.record, Field: key})
	}
	return n
}

func (rr *rowReader) float(key string) float64 {
	f, ok, err := rr.row.Float(key)
	switch {
	case err != nil:
		rr.fail(fmt.Errorf("%s: %w", rr.record, err))
	case !ok:
		rr.fail(&MissingFieldError{Record: rr.record, Field: key})
	}
	return f
}

func (rr *rowReader) optInt(key string) *int64 {
	n, ok, err := rr.row.Int(key)
	if err != nil {
		rr.fail(fmt.Errorf("%s: %w", rr.record, err))
		return nil
	}
	if !ok {
		return nil
	}
	return &n
}

func (rr *rowReader) optFloat(key string) *float64 {
	f, ok, err := rr.row.Float(key)
	if err != nil {
		rr.fail(fmt.Errorf("%s: %w", rr.record, err))
		return nil
	}
	if !ok {
		return nil
	}
	return &f
}

func (rr *rowReader) str(key string) string {
	v, ok := rr.row[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func (rr *rowReader) bytes(key string) []byte {
	v, ok := rr.row[key]
	if !ok {
		rr.fail(&MissingFieldError{Record: rr.record, Field: key})
		return nil
	}
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		rr.fail(fmt.Errorf("%s: column %s: cannot convert %T to bytes", rr.record, key, v))
		return nil
	}
}
