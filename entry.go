package dzip

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Entry is one file or directory candidate supplied by an enumerator such as [github.com/nguyengg/dzip/walk.Dir].
//
// Only entries with IsFile set are ever materialized in the archive. Directory entries are accepted so that an
// enumerator can pass along everything it found, but they never produce any bytes.
type Entry struct {
	// RelativePath is the name of the entry in the archive as well as its sort key.
	//
	// Must use "/" as separator and must be unique among file entries.
	RelativePath string

	// AbsolutePath is where the content of a file entry is read from.
	AbsolutePath string

	// IsFile and IsDir are mutually exclusive. An entry with neither set is treated like a directory.
	IsFile bool
	IsDir  bool

	// Size is the on-disk size in bytes which decides whether a checksum is mandatory.
	Size int64
}

// SortEntries stably sorts entries by RelativePath.
//
// The comparison is byte-wise over the UTF-8 encoding of the path so the order does not depend on the host locale.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.RelativePath, b.RelativePath)
	})
}

// validate checks the enumerator's output before any work begins.
func validate(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		switch {
		case e.RelativePath == "":
			return &Error{Phase: PhaseEnumerate, Path: e.AbsolutePath, Err: fmt.Errorf("%w: empty relative path", ErrInvalidEntry)}
		case !utf8.ValidString(e.RelativePath):
			return &Error{Phase: PhaseEnumerate, Path: e.RelativePath, Err: fmt.Errorf("%w: relative path is not valid UTF-8", ErrInvalidEntry)}
		case e.IsFile && e.IsDir:
			return &Error{Phase: PhaseEnumerate, Path: e.RelativePath, Err: fmt.Errorf("%w: both file and directory", ErrInvalidEntry)}
		case e.Size < 0:
			return &Error{Phase: PhaseEnumerate, Path: e.RelativePath, Err: fmt.Errorf("%w: negative size %d", ErrInvalidEntry, e.Size)}
		case !e.IsFile:
			continue
		case e.AbsolutePath == "":
			return &Error{Phase: PhaseEnumerate, Path: e.RelativePath, Err: fmt.Errorf("%w: empty absolute path", ErrInvalidEntry)}
		case len(e.RelativePath) > 0xffff:
			return &Error{Phase: PhaseEnumerate, Path: e.RelativePath, Err: fmt.Errorf("%w: name longer than 65535 bytes", ErrInvalidEntry)}
		}

		if _, ok := seen[e.RelativePath]; ok {
			return &Error{Phase: PhaseEnumerate, Path: e.RelativePath, Err: ErrDuplicatePath}
		}
		seen[e.RelativePath] = struct{}{}
	}

	return nil
}

// file is the per-invocation state of one file entry.
//
// It is created in sort order before compression starts, enriched by exactly one compression task, then read by the
// assembler and the central directory writer.
type file struct {
	Entry

	checksum         uint32
	hasChecksum      bool
	compressedSize   uint64
	uncompressedSize uint64
	headerOffset     uint64

	payload *payload
}

// payload is the self-contained encoding of one file entry produced by a compression task.
type payload struct {
	header, data, footer []byte
}

func (p *payload) size() uint64 {
	return uint64(len(p.header) + len(p.data) + len(p.footer))
}
