package volumebackup

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable integer surfaced to clients that cannot consume
// a Go error chain directly (e.g. a CLI exit path or a cross-language
// caller). It coexists with normal wrapped errors via errors.Is/As on
// VolumeError and CopyError below.
type ErrorCode int

const (
	Success            ErrorCode = 0
	VolumeAccessDenied ErrorCode = 0x00114514
	CopyAccessDenied   ErrorCode = 0x00114515
	NoSpace            ErrorCode = 0x00114516
	InvalidVolume      ErrorCode = 0x00114517
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case VolumeAccessDenied:
		return "VOLUME_ACCESS_DENIED"
	case CopyAccessDenied:
		return "COPY_ACCESS_DENIED"
	case NoSpace:
		return "NO_SPACE"
	case InvalidVolume:
		return "INVALID_VOLUME"
	default:
		return fmt.Sprintf("ErrorCode(%#x)", int(c))
	}
}

// VolumeError wraps a failure that occurred while opening, locking, or
// validating the source or target volume.
type VolumeError struct {
	Op   string
	Path string
	Code ErrorCode
	Err  error
}

func (e *VolumeError) Error() string {
	return fmt.Sprintf("volumebackup: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *VolumeError) Unwrap() error { return e.Err }

// CopyError wraps a failure that occurred while reading, writing, or
// validating copy data or its metadata.
type CopyError struct {
	Op       string
	CopyName string
	Code     ErrorCode
	Err      error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("volumebackup: %s copy %q: %v", e.Op, e.CopyName, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

func newVolumeError(op, path string, code ErrorCode, err error) *VolumeError {
	return &VolumeError{Op: op, Path: path, Code: code, Err: err}
}

func newCopyError(op, copyName string, code ErrorCode, err error) *CopyError {
	return &CopyError{Op: op, CopyName: copyName, Code: code, Err: err}
}

// errorCode extracts the stable ErrorCode carried by err, if any,
// defaulting to InvalidVolume for an unrecognized error — a task never
// reports SUCCESS for a non-nil error.
func errorCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var volErr *VolumeError
	if errors.As(err, &volErr) {
		return volErr.Code
	}
	var copyErr *CopyError
	if errors.As(err, &copyErr) {
		return copyErr.Code
	}
	return InvalidVolume
}
