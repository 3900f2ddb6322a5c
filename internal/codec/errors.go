package codec

import (
	"fmt"

	"github.com/ae-archive/vae/internal/errs"
)

// UnsupportedFormatError is returned for an unknown blob format code.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported data format %d", int(e.Format))
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == errs.ErrValidation }

// TypeEncodingError is returned when raw samples cannot be stored as int16
// without loss.
type TypeEncodingError struct {
	Type string
}

func (e *TypeEncodingError) Error() string {
	return fmt.Sprintf("cannot encode %s losslessly as int16 samples", e.Type)
}

func (e *TypeEncodingError) Is(target error) bool { return target == errs.ErrValidation }

// CodecUnavailableError is returned by every call that needs a disabled
// compressed codec.
type CodecUnavailableError struct {
	Format Format
}

func (e *CodecUnavailableError) Error() string {
	if !flacBuilt {
		return fmt.Sprintf("%s codec not available: binary built with noflac", e.Format)
	}
	return fmt.Sprintf("%s codec not available: disabled in configuration", e.Format)
}

func (e *CodecUnavailableError) Is(target error) bool { return target == errs.ErrUnavailable }
