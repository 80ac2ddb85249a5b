package scan

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/nguyengg/dzip/internal/record"
)

// FileHeader is a central directory file header.
type FileHeader struct {
	zip.FileHeader

	// Offset is where the corresponding local file header starts.
	Offset int64
}

// LocalFileHeader is a local file header.
//
// The CRC-32 and sizes are zero if the entry uses a data descriptor; see ReadDataDescriptor.
type LocalFileHeader struct {
	zip.FileHeader

	// Offset is where this local file header starts.
	Offset int64
	// DataOffset is where the compressed data starts, right after the name and extra field.
	DataOffset int64
}

// DataDescriptor is the 16-byte record that trails the compressed data of a streamed entry.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// CentralDirectory finds the end record of src then returns an iterator over its central directory file headers.
//
// Iteration is bounded by the directory size recorded in the end record, not the record count, so an archive of
// exactly 65536 entries without zip64 is still listed in full. The iterator stops at the first error.
func CentralDirectory(src io.ReaderAt, size int64) (EndRecord, iter.Seq2[FileHeader, error], error) {
	r, err := FindEnd(src, size)
	if err != nil {
		return r, nil, err
	}

	if r.Offset+r.Size > uint64(size) {
		return r, nil, fmt.Errorf("central directory at 0x%x with size %d exceeds archive size %d", r.Offset, r.Size, size)
	}

	return r, func(yield func(FileHeader, error) bool) {
		var (
			br     = bufio.NewReaderSize(io.NewSectionReader(src, int64(r.Offset), int64(r.Size)), 16*1024)
			buf    = make([]byte, record.CentralDirectoryHeaderLen)
			offset = int64(r.Offset)
			end    = int64(r.Offset + r.Size)
		)

		for offset < end {
			if _, err := io.ReadFull(br, buf); err != nil {
				yield(FileHeader{}, fmt.Errorf("read CD file header at 0x%x error: %w", offset, err))
				return
			}

			fh, n, err := unmarshalCDFileHeader(([record.CentralDirectoryHeaderLen]byte)(buf), br)
			if err != nil {
				yield(FileHeader{}, fmt.Errorf("read CD file header at 0x%x error: %w", offset, err))
				return
			}

			if !yield(fh, nil) {
				return
			}

			offset += int64(n)
		}
	}, nil
}

// ReadLocalFileHeader reads the local file header that starts at the given offset.
func ReadLocalFileHeader(src io.ReaderAt, offset int64) (LocalFileHeader, error) {
	b := make([]byte, record.LocalFileHeaderLen)
	if n, err := src.ReadAt(b, offset); err != nil && !(errors.Is(err, io.EOF) && n == len(b)) {
		return LocalFileHeader{}, fmt.Errorf("read local file header at 0x%x error: %w", offset, err)
	}

	fh, n, err := unmarshalLocalFileHeader(([record.LocalFileHeaderLen]byte)(b), io.NewSectionReader(src, offset+record.LocalFileHeaderLen, 1<<17))
	if err != nil {
		return fh, fmt.Errorf("read local file header at 0x%x error: %w", offset, err)
	}

	fh.Offset = offset
	fh.DataOffset = offset + int64(n)
	return fh, nil
}

// ReadDataDescriptor reads the data descriptor that starts at the given offset.
//
// The signature is mandatory.
func ReadDataDescriptor(src io.ReaderAt, offset int64) (d DataDescriptor, err error) {
	data := &struct {
		Signature uint32
		DataDescriptor
	}{}

	if err = readStruct(src, offset, record.DataDescriptorLen, record.DataDescriptorSig, data); err != nil {
		return d, fmt.Errorf("read data descriptor at 0x%x error: %w", offset, err)
	}

	return data.DataDescriptor, nil
}

// unmarshalCDFileHeader decodes the 46-byte slice as a FileHeader.
// the variable-size part is always read from rest. returns the total number of bytes that make up the record.
func unmarshalCDFileHeader(b [record.CentralDirectoryHeaderLen]byte, rest io.Reader) (fh FileHeader, n int, err error) {
	data := &struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		FileCommentLength uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		Offset            uint32
	}{}

	if want := putUint32(record.CentralDirectoryHeaderSig); !bytes.Equal(want, b[:4]) {
		return fh, 0, fmt.Errorf("%w: got 0x%x, expected 0x%x", ErrMismatchedSignature, b[:4], want)
	}

	if err = binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, data); err != nil {
		return fh, 0, fmt.Errorf("unmarshal error: %w", err)
	}

	fh = FileHeader{
		FileHeader: zip.FileHeader{
			CreatorVersion:     data.CreatorVersion,
			ReaderVersion:      data.ReaderVersion,
			Flags:              data.Flags,
			Method:             data.Method,
			ModifiedTime:       data.ModifiedTime,
			ModifiedDate:       data.ModifiedDate,
			CRC32:              data.CRC32,
			CompressedSize:     data.CompressedSize,
			UncompressedSize:   data.UncompressedSize,
			CompressedSize64:   uint64(data.CompressedSize),
			UncompressedSize64: uint64(data.UncompressedSize),
			ExternalAttrs:      data.ExternalAttrs,
		},
		Offset: int64(data.Offset),
	}
	fh.Modified = msDosTimeToTime(fh.ModifiedDate, fh.ModifiedTime)

	l, m, k := int(data.FileNameLength), int(data.ExtraFieldLength), int(data.FileCommentLength)
	nmk := make([]byte, l+m+k)
	if _, err = io.ReadFull(rest, nmk); err != nil {
		return fh, 0, fmt.Errorf("read variable-size data error: %w", err)
	}

	fh.Name, fh.Extra, fh.Comment = string(nmk[:l]), nmk[l:l+m], string(nmk[l+m:])
	return fh, record.CentralDirectoryHeaderLen + len(nmk), nil
}

// unmarshalLocalFileHeader decodes the 30-byte slice as a LocalFileHeader.
// the variable-size part is always read from rest. returns the total number of bytes that make up the header.
func unmarshalLocalFileHeader(b [record.LocalFileHeaderLen]byte, rest io.Reader) (fh LocalFileHeader, n int, err error) {
	data := &struct {
		Signature        uint32
		ReaderVersion    uint16
		Flags            uint16
		Method           uint16
		ModifiedTime     uint16
		ModifiedDate     uint16
		CRC32            uint32
		CompressedSize   uint32
		UncompressedSize uint32
		FileNameLength   uint16
		ExtraFieldLength uint16
	}{}

	if want := putUint32(record.LocalFileHeaderSig); !bytes.Equal(want, b[:4]) {
		return fh, 0, fmt.Errorf("%w: got 0x%x, expected 0x%x", ErrMismatchedSignature, b[:4], want)
	}

	if err = binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, data); err != nil {
		return fh, 0, fmt.Errorf("unmarshal error: %w", err)
	}

	fh = LocalFileHeader{
		FileHeader: zip.FileHeader{
			ReaderVersion:      data.ReaderVersion,
			Flags:              data.Flags,
			Method:             data.Method,
			ModifiedTime:       data.ModifiedTime,
			ModifiedDate:       data.ModifiedDate,
			CRC32:              data.CRC32,
			CompressedSize:     data.CompressedSize,
			UncompressedSize:   data.UncompressedSize,
			CompressedSize64:   uint64(data.CompressedSize),
			UncompressedSize64: uint64(data.UncompressedSize),
		},
	}
	fh.Modified = msDosTimeToTime(fh.ModifiedDate, fh.ModifiedTime)

	l, m := int(data.FileNameLength), int(data.ExtraFieldLength)
	nm := make([]byte, l+m)
	if _, err = io.ReadFull(rest, nm); err != nil {
		return fh, 0, fmt.Errorf("read variable-size data error: %w", err)
	}

	fh.Name, fh.Extra = string(nm[:l]), nm[l:]
	return fh, record.LocalFileHeaderLen + len(nm), nil
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
//
// taken from https://go.dev/src/archive/zip/struct.go.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}
