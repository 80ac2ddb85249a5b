package scan

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// ErrChecksumMismatch is returned by Verify if the decompressed content does not match the recorded CRC-32.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Open returns a reader of the uncompressed content of the entry described by the central directory file header.
//
// Only the store (0) and deflate (8) methods are supported. It is safe to open multiple entries at the same time since
// src is an io.ReaderAt.
func Open(src io.ReaderAt, fh FileHeader) (io.ReadCloser, error) {
	lfh, err := ReadLocalFileHeader(src, fh.Offset)
	if err != nil {
		return nil, err
	}

	if lfh.Name != fh.Name {
		return nil, fmt.Errorf(`local file header at 0x%x has name "%s", expected "%s"`, fh.Offset, lfh.Name, fh.Name)
	}

	data := io.NewSectionReader(src, lfh.DataOffset, int64(fh.CompressedSize64))

	switch fh.Method {
	case 0:
		return io.NopCloser(data), nil
	case 8:
		return flate.NewReader(data), nil
	default:
		return nil, fmt.Errorf(`unsupported compression method %d for "%s"`, fh.Method, fh.Name)
	}
}

// Verify decompresses the entry and compares the result against the recorded CRC-32 and uncompressed size.
func Verify(src io.ReaderAt, fh FileHeader) error {
	r, err := Open(src, fh)
	if err != nil {
		return err
	}
	defer r.Close()

	h := crc32.NewIEEE()
	n, err := io.Copy(h, r)
	if err != nil {
		return fmt.Errorf(`decompress "%s" error: %w`, fh.Name, err)
	}

	if uint64(n) != fh.UncompressedSize64 {
		return fmt.Errorf(`%w: "%s" has %d uncompressed bytes, expected %d`, ErrChecksumMismatch, fh.Name, n, fh.UncompressedSize64)
	}
	if sum := h.Sum32(); sum != fh.CRC32 {
		return fmt.Errorf(`%w: "%s" has CRC-32 0x%08x, expected 0x%08x`, ErrChecksumMismatch, fh.Name, sum, fh.CRC32)
	}

	return nil
}
