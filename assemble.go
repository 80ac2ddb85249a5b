package dzip

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/nguyengg/dzip/internal/record"
)

// zip64Threshold is the largest file count that still fits the classic end of central directory record.
//
// At exactly this count the 16-bit fields wrap to zero, which standard readers accept.
const zip64Threshold = 65536

// archiveState is the single writer state that owns the output stream.
type archiveState struct {
	w               *bufio.Writer
	cursor          uint64
	fileCount       uint64
	directoryOffset uint64
}

func newArchiveState(w io.Writer) *archiveState {
	return &archiveState{w: bufio.NewWriterSize(w, 64*1024)}
}

func (s *archiveState) write(p []byte) error {
	n, err := s.w.Write(p)
	s.cursor += uint64(n)
	return err
}

// writeEntries writes the local header, data, and descriptor of every file in order.
//
// Must only be called after every compression task has completed.
func (s *archiveState) writeEntries(files []*file) error {
	for _, f := range files {
		if f.payload == nil {
			return &Error{Phase: PhaseAssemble, Path: f.RelativePath, Err: ErrMissingPayload}
		}

		f.headerOffset = s.cursor
		if f.headerOffset > record.Uint32Max {
			return &Error{Phase: PhaseAssemble, Path: f.RelativePath, Err: fmt.Errorf("%w: header offset %d", ErrSizeOverflow, f.headerOffset)}
		}

		for _, b := range [][]byte{f.payload.header, f.payload.data, f.payload.footer} {
			if err := s.write(b); err != nil {
				return writeError(PhaseAssemble, f.RelativePath, "write error", err)
			}
		}

		s.fileCount++
	}

	return nil
}

// writeDirectory writes the central directory followed by the end of central directory records, then flushes.
func (s *archiveState) writeDirectory(files []*file) error {
	s.directoryOffset = s.cursor

	for _, f := range files {
		if !f.hasChecksum && f.Size > 0 {
			return &Error{Phase: PhaseDirectory, Path: f.RelativePath, Err: ErrMissingChecksum}
		}

		h := record.CentralDirectoryHeader{
			Name:             f.RelativePath,
			CRC32:            f.checksum,
			CompressedSize:   uint32(f.compressedSize),
			UncompressedSize: uint32(f.uncompressedSize),
			Offset:           uint32(f.headerOffset),
		}
		if err := s.write(h.Encode()); err != nil {
			return writeError(PhaseDirectory, f.RelativePath, "write error", err)
		}
	}

	directorySize := s.cursor - s.directoryOffset

	if err := s.writeEnd(directorySize); err != nil {
		return writeError(PhaseDirectory, "", "", err)
	}

	if err := s.w.Flush(); err != nil {
		return writeError(PhaseDirectory, "", "flush error", err)
	}

	return nil
}

func (s *archiveState) writeEnd(directorySize uint64) error {
	if s.fileCount <= zip64Threshold {
		if s.directoryOffset > record.Uint32Max || directorySize > record.Uint32Max {
			return fmt.Errorf("%w: central directory at offset %d with size %d", ErrSizeOverflow, s.directoryOffset, directorySize)
		}

		if err := s.write(record.EndOfCentralDir(uint16(s.fileCount), uint32(directorySize), uint32(s.directoryOffset))); err != nil {
			return fmt.Errorf("write end of central directory error: %w", err)
		}

		return nil
	}

	zip64Offset := s.cursor
	if err := s.write(record.Zip64EndOfCentralDir(s.fileCount, directorySize, s.directoryOffset)); err != nil {
		return fmt.Errorf("write zip64 end of central directory error: %w", err)
	}
	if err := s.write(record.Zip64EndLocator(zip64Offset)); err != nil {
		return fmt.Errorf("write zip64 end of central directory locator error: %w", err)
	}
	if err := s.write(record.EndOfCentralDirSentinel()); err != nil {
		return fmt.Errorf("write end of central directory error: %w", err)
	}

	return nil
}

// writeError attributes err to phase unless err already carries its own, as a failure to open the destination does.
func writeError(phase Phase, path, msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	return &Error{Phase: phase, Path: path, Err: err}
}
