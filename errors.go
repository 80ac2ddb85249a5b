package dzip

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEntry is returned if an entry fails validation before any work begins.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrDuplicatePath is returned if two file entries share the same relative path.
	ErrDuplicatePath = errors.New("duplicate relative path")

	// ErrMissingChecksum is returned if a non-empty file reaches the write phase without a checksum.
	//
	// This indicates a broken internal invariant and is never retried.
	ErrMissingChecksum = errors.New("checksum undefined")

	// ErrMissingPayload is returned if a file entry reaches the assembler without a compressed payload.
	ErrMissingPayload = errors.New("payload undefined")

	// ErrSizeOverflow is returned if a size or offset does not fit the width of its record field.
	ErrSizeOverflow = errors.New("size overflow")
)

// Phase identifies which part of the pipeline failed.
type Phase int

const (
	PhaseEnumerate Phase = iota
	PhaseCompress
	PhaseAssemble
	PhaseDirectory
)

func (p Phase) String() string {
	switch p {
	case PhaseEnumerate:
		return "enumeration"
	case PhaseCompress:
		return "compression"
	case PhaseAssemble:
		return "assembly"
	case PhaseDirectory:
		return "directory write"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Error is the single terminal failure of an Archive call.
type Error struct {
	// Phase is the part of the pipeline that failed.
	Phase Phase
	// Path is the relative path of the entry being processed, if any.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s error: %v", e.Phase, e.Err)
	}

	return fmt.Sprintf(`%s error (path="%s"): %v`, e.Phase, e.Path, e.Err)
}
