// Package scan reads the records of a ZIP archive directly from an io.ReaderAt.
//
// Unlike archive/zip, every offset is exposed so callers can check the physical layout of an archive.
package scan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nguyengg/dzip/internal/record"
)

var (
	// ErrNoEOCDFound is returned if no EOCD signature was found.
	ErrNoEOCDFound = errors.New("end of central directory not found; most likely not a ZIP file")

	// ErrMismatchedSignature is returned if a record does not start with its expected signature.
	ErrMismatchedSignature = errors.New("mismatched signature")
)

// maxEOCDSearch is the longest a trailing EOCD record can be: the fixed part plus the largest possible comment.
const maxEOCDSearch = record.EndOfCentralDirLen + 0xffff

// EndRecord models the effective end of central directory of a ZIP file.
//
// If the classic record escapes any of its fields with a sentinel, the values come from the zip64 end record instead.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EndRecord struct {
	// Zip64 is true if the values were read from the zip64 end of central directory record.
	Zip64 bool

	// Records is the total number of central directory records.
	//
	// A classic record stores the count in 16 bits so an archive of exactly 65536 files without zip64 reports 0. Use
	// Size to bound iteration instead of Records.
	Records uint64
	// Size is the size in bytes of the central directory.
	Size uint64
	// Offset is the offset of the start of the central directory relative to start of archive.
	Offset uint64

	// EOCDOffset is where the classic end of central directory record starts.
	EOCDOffset int64
	// Zip64Offset is where the zip64 end of central directory record starts, only meaningful if Zip64 is true.
	Zip64Offset int64

	// Comment is the comment section of the EOCD.
	Comment string
}

// eocd is the fixed-size part of the classic end of central directory record.
type eocd struct {
	Signature     uint32
	DiskNumber    uint16
	CDDiskOffset  uint16
	CDCountOnDisk uint16
	CDCount       uint16
	CDSize        uint32
	CDOffset      uint32
	CommentLength uint16
}

type zip64Locator struct {
	Signature   uint32
	DiskNumber  uint32
	Zip64Offset uint64
	TotalDisks  uint32
}

type zip64EOCD struct {
	Signature      uint32
	RecordSize     uint64
	CreatorVersion uint16
	ReaderVersion  uint16
	DiskNumber     uint32
	CDDiskOffset   uint32
	CDCountOnDisk  uint64
	CDCount        uint64
	CDSize         uint64
	CDOffset       uint64
}

// FindEnd searches the last bytes of src backwards for the end of central directory record.
//
// If the record holds any escape sentinel, FindEnd follows the zip64 end of central directory locator to the zip64
// record and returns its values.
func FindEnd(src io.ReaderAt, size int64) (r EndRecord, err error) {
	if size < record.EndOfCentralDirLen {
		return r, ErrNoEOCDFound
	}

	start := max(size-maxEOCDSearch, 0)
	b := make([]byte, size-start)
	if n, err := src.ReadAt(b, start); err != nil && !(errors.Is(err, io.EOF) && n == len(b)) {
		return r, fmt.Errorf("find EOCD: read error: %w", err)
	}

	sig := putUint32(record.EndOfCentralDirSig)
	for end := len(b); ; {
		i := bytes.LastIndex(b[:end], sig)
		if i == -1 {
			return r, ErrNoEOCDFound
		}

		if i+record.EndOfCentralDirLen <= len(b) {
			var data eocd
			if err = binary.Read(bytes.NewReader(b[i:i+record.EndOfCentralDirLen]), binary.LittleEndian, &data); err != nil {
				return r, fmt.Errorf("find EOCD: unmarshal error: %w", err)
			}

			// a stray signature inside the comment would not account for exactly the remaining bytes.
			if i+record.EndOfCentralDirLen+int(data.CommentLength) == len(b) {
				r = EndRecord{
					Records:    uint64(data.CDCount),
					Size:       uint64(data.CDSize),
					Offset:     uint64(data.CDOffset),
					EOCDOffset: start + int64(i),
					Comment:    string(b[i+record.EndOfCentralDirLen:]),
				}

				if data.CDCount == record.Uint16Max || data.CDSize == record.Uint32Max || data.CDOffset == record.Uint32Max {
					return readZip64End(src, r)
				}

				return r, nil
			}
		}

		end = i
	}
}

// readZip64End follows the locator that immediately precedes the classic record.
//
// If there is no locator, the classic values are returned as is.
func readZip64End(src io.ReaderAt, r EndRecord) (EndRecord, error) {
	locOffset := r.EOCDOffset - record.Zip64EndLocatorLen
	if locOffset < 0 {
		return r, nil
	}

	// a classic record may legitimately hold 0xffff entries, in which case there is no locator.
	var loc zip64Locator
	switch err := readStruct(src, locOffset, record.Zip64EndLocatorLen, record.Zip64EndLocatorSig, &loc); {
	case errors.Is(err, ErrMismatchedSignature):
		return r, nil
	case err != nil:
		return r, fmt.Errorf("find zip64 EOCD: read locator error: %w", err)
	}

	var data zip64EOCD
	if err := readStruct(src, int64(loc.Zip64Offset), record.Zip64EndOfCentralDirLen, record.Zip64EndOfCentralDirSig, &data); err != nil {
		return r, fmt.Errorf("find zip64 EOCD: read record error: %w", err)
	}

	r.Zip64 = true
	r.Zip64Offset = int64(loc.Zip64Offset)
	r.Records = data.CDCount
	r.Size = data.CDSize
	r.Offset = data.CDOffset
	return r, nil
}

// readStruct reads n bytes at offset, checks the leading signature, then decodes the bytes into v.
func readStruct(src io.ReaderAt, offset int64, n int, sig uint32, v any) error {
	b := make([]byte, n)
	if readN, err := src.ReadAt(b, offset); err != nil && !(errors.Is(err, io.EOF) && readN == n) {
		return fmt.Errorf("read %d bytes at 0x%x error: %w", n, offset, err)
	}

	if want := putUint32(sig); !bytes.Equal(want, b[:4]) {
		return fmt.Errorf("%w: got 0x%x, expected 0x%x", ErrMismatchedSignature, b[:4], want)
	}

	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}

func putUint32(v uint32) (b []byte) {
	b = make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
