package store

import (
	"fmt"

	"github.com/ae-archive/vae/internal/errs"
)

// UnsortedColumnError reports a value column that decreases with the index
// column.
type UnsortedColumnError struct {
	Table  string
	Column string
	Index  int64
}

func (e *UnsortedColumnError) Error() string {
	return fmt.Sprintf("column %s.%s is not sorted near index %d", e.Table, e.Column, e.Index)
}

func (e *UnsortedColumnError) Is(target error) bool { return target == errs.ErrConsistency }

// NonMonotonicTimeError reports a write older than the newest stored record.
type NonMonotonicTimeError struct {
	Time float64
	Last float64
}

func (e *NonMonotonicTimeError) Error() string {
	return fmt.Sprintf("time %g is older than last stored time %g", e.Time, e.Last)
}

func (e *NonMonotonicTimeError) Is(target error) bool { return target == errs.ErrValidation }

// FileExtensionError reports a path whose extension does not match the
// store kind.
type FileExtensionError struct {
	Path string
	Want string
}

func (e *FileExtensionError) Error() string {
	return fmt.Sprintf("file %s: expected extension %s", e.Path, e.Want)
}

func (e *FileExtensionError) Is(target error) bool { return target == errs.ErrValidation }

// ReadOnlyError is returned by write operations on a read-only database.
type ReadOnlyError struct {
	Path string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("database %s is opened read-only", e.Path)
}

func (e *ReadOnlyError) Is(target error) bool { return target == errs.ErrValidation }

// UnknownParameterError reports a ParamID without a row in the params table.
type UnknownParameterError struct {
	ParamID int64
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("parameter id %d not found", e.ParamID)
}

func (e *UnknownParameterError) Is(target error) bool { return target == errs.ErrValidation }
